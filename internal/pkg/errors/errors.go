package errors

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks a resource that already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidConfig marks settings that are rejected at construction time.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTenantViolation: a request would have read or written outside its user boundary.
	// Raised before any I/O when detectable from the inputs.
	ErrTenantViolation = errors.New("tenant violation")
	// ErrRetrievalFailure: the vector store or the relevance scorer failed.
	ErrRetrievalFailure = errors.New("retrieval failure")
	// ErrToolLoopViolation: the model asked for another tool call after the single allowed round.
	ErrToolLoopViolation = errors.New("tool loop violation")
	// ErrCoalesceInput: a layout element was malformed; the element is degraded, not dropped.
	ErrCoalesceInput = errors.New("malformed layout element")
	// ErrUpstreamModel: the language model call failed.
	ErrUpstreamModel = errors.New("upstream model error")
)

// Code maps an error onto the short machine-readable code used in API and stream payloads.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTenantViolation):
		return "tenant_violation"
	case errors.Is(err, ErrRetrievalFailure):
		return "retrieval_failure"
	case errors.Is(err, ErrToolLoopViolation):
		return "tool_loop_violation"
	case errors.Is(err, ErrUpstreamModel):
		return "upstream_model_error"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCoalesceInput):
		return "coalesce_input"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
