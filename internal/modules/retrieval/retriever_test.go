package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type fakeEmbedder struct{ calls int }

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{1, 0}, nil
}

type fakeStore struct {
	matches    []vectorstore.Match
	err        error
	lastTopK   int
	lastFilter vectorstore.Filter
	calls      int
}

func (s *fakeStore) Upsert(ctx context.Context, points []vectorstore.Point) error { return nil }

func (s *fakeStore) Search(ctx context.Context, v []float32, topK int, f vectorstore.Filter) ([]vectorstore.Match, error) {
	s.calls++
	s.lastTopK = topK
	s.lastFilter = f
	return s.matches, s.err
}

func (s *fakeStore) DeleteByFilter(ctx context.Context, f vectorstore.Filter) error { return nil }

type scoreByContent map[string]float64

func (s scoreByContent) Score(ctx context.Context, q string, passages []string) ([]float64, error) {
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s[p]
	}
	return out, nil
}

type failingScorer struct{}

func (failingScorer) Score(ctx context.Context, q string, passages []string) ([]float64, error) {
	return nil, errors.New("scorer down")
}

func match(id, user, content string) vectorstore.Match {
	return vectorstore.Match{
		ID:      id,
		Score:   0.5,
		Content: content,
		Metadata: map[string]any{
			vectorstore.MetaUserID:     user,
			vectorstore.MetaDocumentID: "doc-" + id,
			vectorstore.MetaFileName:   id + ".pdf",
			vectorstore.MetaPage:       float64(2),
		},
	}
}

func newTestRetriever(t *testing.T, store vectorstore.Store, scorer Scorer) *Retriever {
	t.Helper()
	r, err := NewRetriever(logger.Nop(), store, &fakeEmbedder{}, scorer, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	return r
}

func TestRetrieveRerankKeepsTopKStable(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a", "u1", "pa"),
		match("b", "u1", "pb"),
		match("c", "u1", "pc"),
		match("d", "u1", "pd"),
	}}
	r := newTestRetriever(t, store, scoreByContent{"pa": 0.1, "pb": 0.9, "pc": 0.9, "pd": 0.5})

	got, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.lastTopK != 8 {
		t.Fatalf("candidate pool: want=8 got=%d", store.lastTopK)
	}
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("len: want=%d got=%d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order[%d]: want=%s got=%s", i, id, got[i].ID)
		}
	}
	doc := got[0].Document()
	if doc.Source != "b.pdf" || doc.DocumentID != "doc-b" || doc.Page == nil || *doc.Page != 2 {
		t.Fatalf("document: got=%+v", doc)
	}
}

func TestRetrieveAppliesTenantAndDocumentFilter(t *testing.T) {
	store := &fakeStore{}
	r := newTestRetriever(t, store, scoreByContent{})
	if _, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1", DocumentID: "d9"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.lastFilter[vectorstore.MetaUserID] != "u1" || store.lastFilter[vectorstore.MetaDocumentID] != "d9" {
		t.Fatalf("filter: got=%v", store.lastFilter)
	}
}

func TestRetrieveRejectsInvalidUserBeforeIO(t *testing.T) {
	store := &fakeStore{}
	r := newTestRetriever(t, store, scoreByContent{})
	for _, uid := range []string{"", " u1", "u 1", "u1\n"} {
		_, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: uid})
		if !errors.Is(err, pkgerrors.ErrTenantViolation) {
			t.Fatalf("user %q: want tenant violation got=%v", uid, err)
		}
	}
	if store.calls != 0 {
		t.Fatalf("store calls: want=0 got=%d", store.calls)
	}
}

func TestRetrieveDiscardsForeignChunks(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{match("a", "u1", "pa"), match("b", "u2", "pb")}}
	r := newTestRetriever(t, store, scoreByContent{})
	got, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1"})
	if !errors.Is(err, pkgerrors.ErrTenantViolation) {
		t.Fatalf("want tenant violation got=%v", err)
	}
	if got != nil {
		t.Fatalf("response must be discarded: got=%+v", got)
	}
}

func TestRetrieveEmptyPool(t *testing.T) {
	r := newTestRetriever(t, &fakeStore{}, failingScorer{})
	got, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil result got=%v", got)
	}
}

func TestRetrieveFailures(t *testing.T) {
	r := newTestRetriever(t, &fakeStore{matches: []vectorstore.Match{match("a", "u1", "pa")}}, failingScorer{})
	if _, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1"}); !errors.Is(err, pkgerrors.ErrRetrievalFailure) {
		t.Fatalf("scorer failure: want retrieval failure got=%v", err)
	}
	r = newTestRetriever(t, &fakeStore{err: errors.New("boom")}, scoreByContent{})
	if _, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1"}); !errors.Is(err, pkgerrors.ErrRetrievalFailure) {
		t.Fatalf("store failure: want retrieval failure got=%v", err)
	}
}

func TestConfigRequiresPoolLargerThanFinal(t *testing.T) {
	_, err := NewRetriever(logger.Nop(), &fakeStore{}, &fakeEmbedder{}, scoreByContent{}, Config{KCandidates: 3, KFinal: 3}, nil)
	if !errors.Is(err, pkgerrors.ErrInvalidConfig) {
		t.Fatalf("equal sizes: want invalid config got=%v", err)
	}
	r := newTestRetriever(t, &fakeStore{}, scoreByContent{})
	if _, err := r.Retrieve(t.Context(), Query{Text: "q", UserID: "u1", K: 8}); !errors.Is(err, pkgerrors.ErrInvalidConfig) {
		t.Fatalf("k override: want invalid config got=%v", err)
	}
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("RETRIEVER_K", "12")
	t.Setenv("RERANKER_TOP_N_RETRIEVED_DOCS", "4")
	cfg := ResolveConfigFromEnv()
	if cfg.KCandidates != 12 || cfg.KFinal != 4 {
		t.Fatalf("cfg: got=%+v", cfg)
	}
}

func TestToolUsesRunConfigUser(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{match("a", "u1", "pa")}}
	tool := NewTool(newTestRetriever(t, store, scoreByContent{"pa": 1}))

	if _, _, err := tool.Invoke(t.Context(), json.RawMessage(`{"query":"x"}`)); !errors.Is(err, pkgerrors.ErrTenantViolation) {
		t.Fatalf("missing run config: want tenant violation got=%v", err)
	}

	ctx := conversation.WithRunConfig(t.Context(), conversation.RunConfig{ThreadID: "t", UserID: "u1"})
	content, artifact, err := tool.Invoke(ctx, json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if store.lastFilter[vectorstore.MetaUserID] != "u1" {
		t.Fatalf("filter user: got=%v", store.lastFilter)
	}
	docs, err := UnmarshalDocuments(artifact)
	if err != nil || len(docs) != 1 || docs[0].Content != "pa" {
		t.Fatalf("artifact: docs=%+v err=%v", docs, err)
	}
	if content != string(artifact) {
		t.Fatalf("content: want artifact json got=%q", content)
	}

	out, err := tool.Call(ctx, "plain question")
	if err != nil || out == "" {
		t.Fatalf("Call: out=%q err=%v", out, err)
	}
	if tool.Name() != "retrieve_documents" {
		t.Fatalf("name: got=%q", tool.Name())
	}
}
