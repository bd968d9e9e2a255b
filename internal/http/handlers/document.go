package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/rag-backend/internal/http/response"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/services"
)

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
	maxBytes  int64
}

func NewDocumentHandler(log *logger.Logger, documents services.DocumentService, maxBytes int64) *DocumentHandler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), documents: documents, maxBytes: maxBytes}
}

// POST /api/document/upload (multipart field "file")
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("missing file: %w", err))
		return
	}
	if fh.Size > h.maxBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "too_large", fmt.Errorf("file exceeds %d bytes", h.maxBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if int64(len(data)) > h.maxBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "too_large", fmt.Errorf("file exceeds %d bytes", h.maxBytes))
		return
	}

	ctx := c.Request.Context()
	res, err := h.documents.Upload(ctx, ctxutil.UserID(ctx), fh.Filename, fh.Header.Get("Content-Type"), data)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"filename": res.FileName, "status": "uploaded", "ingested": res})
}

// GET /api/document/list
func (h *DocumentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	docs, err := h.documents.List(ctx, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// DELETE /api/document/:document_id
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("document_id"))
	if docID == "" {
		response.RespondErr(c, fmt.Errorf("document_id required: %w", pkgerrors.ErrInvalidArgument))
		return
	}
	ctx := c.Request.Context()
	if err := h.documents.Delete(ctx, ctxutil.UserID(ctx), docID); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "deleted", "document_id": docID})
}
