package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/rag-backend/internal/data/repos/testutil"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
)

func TestStoreAppendAndLoadPreservesOrder(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := t.Context()
	user := testutil.UniqueUser()
	key := conversation.Key{ThreadID: "t1", UserID: user}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	turn1 := []conversation.Message{
		conversation.Enrich(conversation.Human("What is X?"), "ix1", at),
		conversation.Enrich(conversation.AI("", conversation.ToolCall{ID: "c1", Name: "retrieve_documents", Arguments: json.RawMessage(`{"query":"X"}`)}), "ix1", at),
		conversation.Enrich(conversation.ToolResult("c1", "retrieve_documents", "[]", json.RawMessage(`[{"content":"x"}]`)), "ix1", at),
		conversation.Enrich(conversation.AI("X is x."), "ix1", at),
	}
	require.NoError(t, s.Append(ctx, key, turn1))
	require.NoError(t, s.Append(ctx, key, []conversation.Message{
		conversation.Enrich(conversation.Human("thanks"), "ix2", at),
		conversation.Enrich(conversation.AI("welcome"), "ix2", at),
	}))

	log, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 6, log.Len())

	msgs := log.Messages()
	require.Equal(t, conversation.RoleHuman, msgs[0].Role)
	require.Equal(t, turn1[0].ID, msgs[0].ID)
	require.Len(t, msgs[1].ToolCalls, 1)
	require.Equal(t, "retrieve_documents", msgs[1].ToolCalls[0].Name)
	require.JSONEq(t, `[{"content":"x"}]`, string(msgs[2].Artifact))
	require.Equal(t, "c1", msgs[2].ToolCallID)
	require.Equal(t, "ix1", msgs[3].InteractionID)
	require.Equal(t, "welcome", msgs[5].Content)
	require.True(t, msgs[0].GeneratedAt.Equal(at))

	other, err := s.Load(ctx, conversation.Key{ThreadID: "t1", UserID: testutil.UniqueUser()})
	require.NoError(t, err)
	require.Equal(t, 0, other.Len())
}

func TestStoreHistoryKeepsCreatedAt(t *testing.T) {
	db := testutil.DB(t)
	s := NewStore(db, testutil.Logger(t))
	ctx := t.Context()
	user := testutil.UniqueUser()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, user, "a", t0))
	require.NoError(t, s.Record(ctx, user, "b", t0.Add(time.Minute)))
	require.NoError(t, s.Record(ctx, user, "a", t0.Add(2*time.Minute)))

	got, err := s.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ThreadID)
	require.True(t, got[0].CreatedAt.Equal(t0), "created_at moved: %v", got[0].CreatedAt)
	require.True(t, got[0].UpdatedAt.Equal(t0.Add(2*time.Minute)))
}

func TestReserveSeqIsConsecutive(t *testing.T) {
	db := testutil.DB(t)
	repo := NewChatThreadRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: t.Context(), Tx: testutil.Tx(t, db)}
	user := testutil.UniqueUser()
	now := time.Now()

	first, err := repo.ReserveSeq(dbc, user, "t", 2, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
	next, err := repo.ReserveSeq(dbc, user, "t", 4, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), next)

	th, err := repo.Get(dbc, user, "t")
	require.NoError(t, err)
	require.Equal(t, int64(6), th.NextSeq)
}

func TestRedisHistory(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewRedisHistory(rdb, testutil.Logger(t), "test")
	ctx := t.Context()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, "u1", "a", t0))
	require.NoError(t, h.Record(ctx, "u1", "b", t0.Add(time.Minute)))
	require.NoError(t, h.Record(ctx, "u1", "a", t0.Add(2*time.Minute)))
	require.NoError(t, h.Record(ctx, "u2", "c", t0))

	got, err := h.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ThreadID)
	require.True(t, got[0].CreatedAt.Equal(t0))
	require.True(t, got[0].UpdatedAt.Equal(t0.Add(2*time.Minute)))
	require.Equal(t, "b", got[1].ThreadID)

	empty, err := h.List(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.Error(t, h.Record(ctx, "", "a", t0))
}
