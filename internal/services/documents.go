package services

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/modules/ingestion"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

const (
	ContentTypePDF = "application/pdf"
	pdfMagic       = "%PDF-"
)

type DocumentService interface {
	// Upload validates that data is a PDF and indexes it for userID.
	Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (ingestion.Result, error)
	List(ctx context.Context, userID string) ([]*types.Document, error)
	Delete(ctx context.Context, userID, documentID string) error
}

type Indexer interface {
	Ingest(ctx context.Context, in ingestion.Input) (ingestion.Result, error)
	List(ctx context.Context, userID string) ([]*types.Document, error)
	Delete(ctx context.Context, userID, documentID string) error
}

type documentService struct {
	log     *logger.Logger
	indexer Indexer
}

func NewDocumentService(log *logger.Logger, indexer Indexer) DocumentService {
	return &documentService{log: log.With("service", "DocumentService"), indexer: indexer}
}

func (s *documentService) Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (ingestion.Result, error) {
	if err := CheckPDF(contentType, data); err != nil {
		return ingestion.Result{}, err
	}
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "." || name == "/" || name == "" {
		name = "document.pdf"
	}
	res, err := s.indexer.Ingest(ctx, ingestion.Input{
		UserID:      userID,
		FileName:    name,
		ContentType: ContentTypePDF,
		Data:        data,
	})
	if err != nil {
		return ingestion.Result{}, err
	}
	s.log.Info("document uploaded", "user_id", userID, "document_id", res.DocumentID, "chunks", res.Chunks)
	return res, nil
}

func (s *documentService) List(ctx context.Context, userID string) ([]*types.Document, error) {
	out, err := s.indexer.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.Document{}
	}
	return out, nil
}

func (s *documentService) Delete(ctx context.Context, userID, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("document_id required: %w", pkgerrors.ErrInvalidArgument)
	}
	return s.indexer.Delete(ctx, userID, documentID)
}

// CheckPDF accepts only application/pdf uploads whose bytes carry the PDF header.
func CheckPDF(contentType string, data []byte) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(mt, ContentTypePDF) {
		return fmt.Errorf("unsupported content type %q, only %s is accepted: %w", contentType, ContentTypePDF, pkgerrors.ErrInvalidArgument)
	}
	if !bytes.HasPrefix(data, []byte(pdfMagic)) {
		return fmt.Errorf("file is not a PDF: %w", pkgerrors.ErrInvalidArgument)
	}
	return nil
}
