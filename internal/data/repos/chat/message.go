package chat

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error)
	// ListByThread returns the thread's messages in sequence order.
	ListByThread(dbc dbctx.Context, userID, threadID string) ([]*types.ChatMessage, error)
	CountByThread(dbc dbctx.Context, userID, threadID string) (int64, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(rows) == 0 {
		return []*types.ChatMessage{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chatMessageRepo) ListByThread(dbc dbctx.Context, userID, threadID string) ([]*types.ChatMessage, error) {
	if userID == "" || threadID == "" {
		return nil, fmt.Errorf("missing user_id or thread_id: %w", pkgerrors.ErrInvalidArgument)
	}
	var out []*types.ChatMessage
	if err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) CountByThread(dbc dbctx.Context, userID, threadID string) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.ChatMessage{}).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		Count(&n).Error
	return n, err
}
