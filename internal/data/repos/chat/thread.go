package chat

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type ChatThreadRepo interface {
	// Touch creates the thread row on first use and moves updated_at otherwise.
	Touch(dbc dbctx.Context, userID, threadID string, at time.Time) error
	Get(dbc dbctx.Context, userID, threadID string) (*types.ChatThread, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.ChatThread, error)
	// ReserveSeq allocates n consecutive message sequence numbers and returns the first.
	ReserveSeq(dbc dbctx.Context, userID, threadID string, n int, at time.Time) (int64, error)
}

type chatThreadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatThreadRepo(db *gorm.DB, log *logger.Logger) ChatThreadRepo {
	return &chatThreadRepo{db: db, log: log.With("repo", "ChatThreadRepo")}
}

func (r *chatThreadRepo) Touch(dbc dbctx.Context, userID, threadID string, at time.Time) error {
	if userID == "" || threadID == "" {
		return fmt.Errorf("missing user_id or thread_id: %w", pkgerrors.ErrInvalidArgument)
	}
	at = at.UTC()
	row := &types.ChatThread{UserID: userID, ThreadID: threadID, CreatedAt: at, UpdatedAt: at}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "thread_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).
		Create(row).Error
}

func (r *chatThreadRepo) Get(dbc dbctx.Context, userID, threadID string) (*types.ChatThread, error) {
	var out types.ChatThread
	err := dbc.DB(r.db).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("thread %s: %w", threadID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatThreadRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.ChatThread, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id: %w", pkgerrors.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*types.ChatThread
	if err := dbc.DB(r.db).
		Model(&types.ChatThread{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatThreadRepo) ReserveSeq(dbc dbctx.Context, userID, threadID string, n int, at time.Time) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve seq: n must be positive: %w", pkgerrors.ErrInvalidArgument)
	}
	at = at.UTC()
	txx := dbc.DB(r.db)
	row := &types.ChatThread{UserID: userID, ThreadID: threadID, CreatedAt: at, UpdatedAt: at}
	if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return 0, err
	}
	res := txx.Model(&types.ChatThread{}).
		Where("user_id = ? AND thread_id = ?", userID, threadID).
		UpdateColumn("next_seq", gorm.Expr("next_seq + ?", n))
	if res.Error != nil {
		return 0, res.Error
	}
	var th types.ChatThread
	if err := txx.Where("user_id = ? AND thread_id = ?", userID, threadID).First(&th).Error; err != nil {
		return 0, err
	}
	return th.NextSeq - int64(n) + 1, nil
}
