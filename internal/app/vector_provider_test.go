package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

func TestResolveVectorStoreQdrantReady(t *testing.T) {
	probed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			probed = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("QDRANT_URL", srv.URL)
	t.Setenv("DOCUMENTS_COLLECTION", "documents")
	t.Setenv("QDRANT_VECTOR_DIM", "3")

	vs, err := resolveVectorStore(t.Context(), logger.Nop(), Config{VectorBackend: "qdrant"}, nil)
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if _, ok := vs.(*instrumentedVectorStore); !ok {
		t.Fatalf("vector store: want instrumented wrapper got=%T", vs)
	}
	if !probed {
		t.Fatalf("qdrant readiness not probed")
	}
}

func TestResolveVectorStoreQdrantErrors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		dim  string
		want VectorProviderBootstrapErrorCode
	}{
		{"missing url", "", "3", VectorProviderBootstrapErrorMissingQdrantURL},
		{"invalid url", "qdrant:6333", "3", VectorProviderBootstrapErrorInvalidQdrantURL},
		{"invalid dim", "http://qdrant:6333", "many", VectorProviderBootstrapErrorInvalidQdrantVector},
		{"unreachable", "http://127.0.0.1:1", "3", VectorProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("QDRANT_URL", tc.url)
			t.Setenv("DOCUMENTS_COLLECTION", "documents")
			t.Setenv("QDRANT_VECTOR_DIM", tc.dim)

			_, err := resolveVectorStore(t.Context(), logger.Nop(), Config{VectorBackend: "qdrant"}, nil)
			var got *VectorProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("error type: want *VectorProviderBootstrapError got=%T (%v)", err, err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%s got=%s (%v)", tc.want, got.Code, err)
			}
		})
	}
}

func TestResolveVectorStoreChromemAndUnknown(t *testing.T) {
	t.Setenv("CHROMEM_PATH", "")
	vs, err := resolveVectorStore(t.Context(), logger.Nop(), Config{VectorBackend: " Chromem "}, nil)
	if err != nil || vs == nil {
		t.Fatalf("chromem: vs=%v err=%v", vs, err)
	}

	_, err = resolveVectorStore(t.Context(), logger.Nop(), Config{VectorBackend: "pinecone"}, nil)
	if vectorProviderBootstrapErrorCode(err) != VectorProviderBootstrapErrorInvalidProvider {
		t.Fatalf("unknown provider: got=%v", err)
	}
}

type countingStore struct {
	upserts, searches, deletes int
	deleteErr                  error
}

func (s *countingStore) Upsert(context.Context, []vectorstore.Point) error {
	s.upserts++
	return nil
}

func (s *countingStore) Search(context.Context, []float32, int, vectorstore.Filter) ([]vectorstore.Match, error) {
	s.searches++
	return []vectorstore.Match{{ID: "p1", Score: 0.9}}, nil
}

func (s *countingStore) DeleteByFilter(context.Context, vectorstore.Filter) error {
	s.deletes++
	return s.deleteErr
}

func TestInstrumentVectorStorePassThrough(t *testing.T) {
	want := errors.New("delete failed")
	inner := &countingStore{deleteErr: want}
	vs := instrumentVectorStore("qdrant", inner, nil)
	ctx := t.Context()
	filter := vectorstore.Filter{vectorstore.MetaUserID: "u1"}

	if err := vs.Upsert(ctx, []vectorstore.Point{{ID: "p1", Vector: []float32{1}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if out, err := vs.Search(ctx, []float32{1}, 3, filter); err != nil || len(out) != 1 {
		t.Fatalf("Search: out=%v err=%v", out, err)
	}
	if err := vs.DeleteByFilter(ctx, filter); !errors.Is(err, want) {
		t.Fatalf("DeleteByFilter: want=%v got=%v", want, err)
	}
	if inner.upserts != 1 || inner.searches != 1 || inner.deletes != 1 {
		t.Fatalf("call counts: upsert=%d search=%d delete=%d", inner.upserts, inner.searches, inner.deletes)
	}
	if instrumentVectorStore("qdrant", nil, nil) != nil {
		t.Fatalf("nil inner: expected nil wrapper")
	}
}
