package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// Store is the relational conversation store: the message log and the history index.
type Store struct {
	db       *gorm.DB
	log      *logger.Logger
	threads  ChatThreadRepo
	messages ChatMessageRepo
}

var (
	_ conversation.MessageLog   = (*Store)(nil)
	_ conversation.HistoryIndex = (*Store)(nil)
)

func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		db:       db,
		log:      log.With("repo", "ChatStore"),
		threads:  NewChatThreadRepo(db, log),
		messages: NewChatMessageRepo(db, log),
	}
}

func (s *Store) Load(ctx context.Context, key conversation.Key) (conversation.Log, error) {
	rows, err := s.messages.ListByThread(dbctx.New(ctx), key.UserID, key.ThreadID)
	if err != nil {
		return conversation.Log{}, fmt.Errorf("load thread %s: %w", key.ThreadID, err)
	}
	msgs := make([]conversation.Message, 0, len(rows))
	for _, row := range rows {
		m, err := fromRow(row)
		if err != nil {
			return conversation.Log{}, err
		}
		msgs = append(msgs, m)
	}
	return conversation.NewLog(msgs...), nil
}

// Append writes msgs in one transaction with consecutive sequence numbers.
func (s *Store) Append(ctx context.Context, key conversation.Key, msgs []conversation.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		first, err := s.threads.ReserveSeq(dbc, key.UserID, key.ThreadID, len(msgs), now)
		if err != nil {
			return fmt.Errorf("reserve seq: %w", err)
		}
		rows := make([]*types.ChatMessage, 0, len(msgs))
		for i, m := range msgs {
			row, err := toRow(key, m, first+int64(i), now)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		_, err = s.messages.Create(dbc, rows)
		return err
	})
}

func (s *Store) Record(ctx context.Context, userID, threadID string, at time.Time) error {
	return s.threads.Touch(dbctx.New(ctx), userID, threadID, at)
}

func (s *Store) List(ctx context.Context, userID string) ([]conversation.HistoryEntry, error) {
	rows, err := s.threads.ListByUser(dbctx.New(ctx), userID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversation.HistoryEntry{ThreadID: r.ThreadID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
	}
	conversation.SortHistory(out)
	return out, nil
}

func toRow(key conversation.Key, m conversation.Message, seq int64, now time.Time) (*types.ChatMessage, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		id = uuid.New()
	}
	row := &types.ChatMessage{
		ID:            id,
		UserID:        key.UserID,
		ThreadID:      key.ThreadID,
		Seq:           seq,
		Role:          string(m.Role),
		Content:       m.Content,
		Name:          m.Name,
		ToolCallID:    m.ToolCallID,
		InteractionID: m.InteractionID,
		GeneratedAt:   m.GeneratedAt,
		CreatedAt:     now,
	}
	if row.GeneratedAt.IsZero() {
		row.GeneratedAt = now
	}
	if len(m.ToolCalls) > 0 {
		raw, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("encode tool calls: %w", err)
		}
		row.ToolCalls = datatypes.JSON(raw)
	}
	if len(m.Artifact) > 0 {
		row.Artifact = datatypes.JSON(m.Artifact)
	}
	if len(m.Metadata) > 0 {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(raw)
	}
	return row, nil
}

func fromRow(row *types.ChatMessage) (conversation.Message, error) {
	m := conversation.Message{
		ID:            row.ID.String(),
		Role:          conversation.Role(row.Role),
		Content:       row.Content,
		Name:          row.Name,
		ToolCallID:    row.ToolCallID,
		InteractionID: row.InteractionID,
		GeneratedAt:   row.GeneratedAt.UTC(),
	}
	if len(row.ToolCalls) > 0 {
		if err := json.Unmarshal(row.ToolCalls, &m.ToolCalls); err != nil {
			return conversation.Message{}, fmt.Errorf("decode tool calls of %s: %w", row.ID, err)
		}
	}
	if len(row.Artifact) > 0 {
		m.Artifact = json.RawMessage(append([]byte(nil), row.Artifact...))
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &m.Metadata); err != nil {
			return conversation.Message{}, fmt.Errorf("decode metadata of %s: %w", row.ID, err)
		}
	}
	return m, nil
}
