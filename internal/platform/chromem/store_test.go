package chromem

import (
	"context"
	"testing"

	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(logger.Nop(), Config{Collection: "documents"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.Upsert(context.Background(), []vectorstore.Point{
		{ID: "a:0", Vector: []float32{1, 0, 0}, Content: "alice one", Metadata: map[string]any{"user_id": "alice", "document_id": "a", "page": 2}},
		{ID: "a:1", Vector: []float32{0.9, 0.1, 0}, Content: "alice two", Metadata: map[string]any{"user_id": "alice", "document_id": "a2"}},
		{ID: "b:0", Vector: []float32{1, 0, 0}, Content: "bob one", Metadata: map[string]any{"user_id": "bob", "document_id": "b"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestSearchIsTenantScoped(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, vectorstore.Filter{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	for _, m := range matches {
		if m.Metadata["user_id"] != "alice" {
			t.Fatalf("cross-tenant match: %+v", m)
		}
	}
	if matches[0].ID != "a:0" || matches[0].Metadata["page"] != 2 {
		t.Fatalf("top match: got=%+v", matches[0])
	}
}

func TestSearchByDocument(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, vectorstore.Filter{"user_id": "alice", "document_id": "a2"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Content != "alice two" {
		t.Fatalf("document filter: got=%+v", matches)
	}
}

func TestSearchRequiresTenant(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Search(context.Background(), []float32{1, 0, 0}, 3, vectorstore.Filter{"document_id": "a"}); err == nil {
		t.Fatalf("Search without user_id: expected error")
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 3, vectorstore.Filter{"user_id": "nobody"})
	if err != nil || len(matches) != 0 {
		t.Fatalf("Search: want empty,nil got=%v,%v", matches, err)
	}
}

func TestDeleteByFilter(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	if err := s.DeleteByFilter(context.Background(), vectorstore.Filter{"user_id": "alice", "document_id": "a"}); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, vectorstore.Filter{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a:1" {
		t.Fatalf("after delete: got=%+v", matches)
	}
	bob, _ := s.Search(context.Background(), []float32{1, 0, 0}, 10, vectorstore.Filter{"user_id": "bob"})
	if len(bob) != 1 {
		t.Fatalf("other tenant affected: got=%+v", bob)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	in := map[string]any{"file_name": "a.pdf", "page": 3, "layout_categories": []string{"Text", "Title"}}
	out := decodeMetadata(encodeMetadata(in))
	if out["file_name"] != "a.pdf" || out["page"] != 3 {
		t.Fatalf("decodeMetadata: got=%v", out)
	}
	cats, ok := out["layout_categories"].([]any)
	if !ok || len(cats) != 2 {
		t.Fatalf("layout_categories: got=%v", out["layout_categories"])
	}
}
