package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From classifies err for an HTTP response. An *Error anywhere in the chain wins;
// otherwise the sentinel taxonomy decides the status.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	code := pkgerrors.Code(err)
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return New(http.StatusBadRequest, code, err)
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		return New(http.StatusUnauthorized, code, err)
	case errors.Is(err, pkgerrors.ErrTenantViolation):
		return New(http.StatusForbidden, code, err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		return New(http.StatusNotFound, code, err)
	case errors.Is(err, pkgerrors.ErrConflict):
		return New(http.StatusConflict, code, err)
	case errors.Is(err, pkgerrors.ErrRetrievalFailure), errors.Is(err, pkgerrors.ErrUpstreamModel):
		return New(http.StatusBadGateway, code, err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(http.StatusGatewayTimeout, code, err)
	default:
		return New(http.StatusInternalServerError, code, err)
	}
}
