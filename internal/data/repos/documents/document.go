package documents

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type DocumentRepo interface {
	// Create fails with ErrConflict when the user already registered the document.
	Create(dbc dbctx.Context, doc *types.Document) error
	Exists(dbc dbctx.Context, userID, documentID string) (bool, error)
	Get(dbc dbctx.Context, userID, documentID string) (*types.Document, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.Document, error)
	Delete(dbc dbctx.Context, userID, documentID string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	if doc == nil || doc.UserID == "" || doc.DocumentID == "" {
		return fmt.Errorf("missing user_id or document_id: %w", pkgerrors.ErrInvalidArgument)
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(doc)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("document %s: %w", doc.DocumentID, pkgerrors.ErrConflict)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", doc.DocumentID, pkgerrors.ErrConflict)
	}
	return nil
}

func (r *documentRepo) Exists(dbc dbctx.Context, userID, documentID string) (bool, error) {
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *documentRepo) Get(dbc dbctx.Context, userID, documentID string) (*types.Document, error) {
	var out types.Document
	err := dbc.DB(r.db).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.Document, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id: %w", pkgerrors.ErrInvalidArgument)
	}
	var out []*types.Document
	if err := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("user_id = ?", userID).
		Order("ingested_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) Delete(dbc dbctx.Context, userID, documentID string) error {
	res := dbc.DB(r.db).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		Delete(&types.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	return nil
}
