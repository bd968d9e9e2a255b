package chat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// RedisHistory keeps the per-user thread index in two hashes keyed by thread id:
// <prefix>:chat_history:<user>:created (written once) and :updated (overwritten).
// Values are unix nanoseconds.
type RedisHistory struct {
	rdb    *goredis.Client
	log    *logger.Logger
	prefix string
}

var _ conversation.HistoryIndex = (*RedisHistory)(nil)

func NewRedisHistory(rdb *goredis.Client, log *logger.Logger, prefix string) *RedisHistory {
	if prefix == "" {
		prefix = "rag"
	}
	return &RedisHistory{rdb: rdb, log: log.With("repo", "RedisHistory"), prefix: prefix}
}

func (h *RedisHistory) keys(userID string) (created, updated string) {
	base := fmt.Sprintf("%s:chat_history:%s", h.prefix, userID)
	return base + ":created", base + ":updated"
}

func (h *RedisHistory) Record(ctx context.Context, userID, threadID string, at time.Time) error {
	if userID == "" || threadID == "" {
		return fmt.Errorf("missing user_id or thread_id: %w", pkgerrors.ErrInvalidArgument)
	}
	created, updated := h.keys(userID)
	ts := strconv.FormatInt(at.UTC().UnixNano(), 10)
	_, err := h.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSetNX(ctx, created, threadID, ts)
		p.HSet(ctx, updated, threadID, ts)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record history: %w", err)
	}
	return nil
}

func (h *RedisHistory) List(ctx context.Context, userID string) ([]conversation.HistoryEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("missing user_id: %w", pkgerrors.ErrInvalidArgument)
	}
	createdKey, updatedKey := h.keys(userID)
	created, err := h.rdb.HGetAll(ctx, createdKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list history: %w", err)
	}
	updated, err := h.rdb.HGetAll(ctx, updatedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list history: %w", err)
	}

	out := make([]conversation.HistoryEntry, 0, len(created))
	for threadID, c := range created {
		e := conversation.HistoryEntry{ThreadID: threadID, CreatedAt: parseNanos(c)}
		e.UpdatedAt = e.CreatedAt
		if u, ok := updated[threadID]; ok {
			e.UpdatedAt = parseNanos(u)
		}
		out = append(out, e)
	}
	conversation.SortHistory(out)
	return out, nil
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
