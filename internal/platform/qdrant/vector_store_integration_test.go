package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

func TestVectorStoreIntegrationAgainstLocalQdrant(t *testing.T) {
	if !qdrantIntegrationEnabled() {
		t.Skip("set QDRANT_INTEGRATION=1 to run Qdrant integration tests")
	}
	baseURL := qdrantIntegrationURL()
	if err := waitForQdrantReady(baseURL); err != nil {
		t.Fatalf("qdrant not ready: %v", err)
	}

	collection := "rag_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	vs, err := NewVectorStore(newTestLogger(t), Config{URL: baseURL, Collection: collection, VectorDim: 3})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	t.Cleanup(func() {
		req, _ := http.NewRequest(http.MethodDelete, baseURL+"/collections/"+collection, nil)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
		}
	})

	ctx := t.Context()
	if err := vs.Upsert(ctx, []vectorstore.Point{
		{ID: "a:0", Vector: []float32{1, 0, 0}, Content: "alpha", Metadata: map[string]any{"user_id": "alice", "document_id": "a"}},
		{ID: "b:0", Vector: []float32{1, 0, 0}, Content: "bravo", Metadata: map[string]any{"user_id": "bob", "document_id": "b"}},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := vs.Search(ctx, []float32{1, 0, 0}, 5, vectorstore.Filter{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Content != "alpha" {
		t.Fatalf("tenant-filtered search: got=%+v", matches)
	}

	if err := vs.DeleteByFilter(ctx, vectorstore.Filter{"user_id": "alice", "document_id": "a"}); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	matches, err = vs.Search(ctx, []float32{1, 0, 0}, 5, vectorstore.Filter{"user_id": "alice"})
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("deleted points still returned: %+v", matches)
	}
}

func qdrantIntegrationEnabled() bool {
	return envutil.Bool("QDRANT_INTEGRATION", false)
}

func qdrantIntegrationURL() string {
	return strings.TrimRight(envutil.FirstString("http://127.0.0.1:6333", "QDRANT_INTEGRATION_URL", "QDRANT_URL"), "/")
}

// waitForQdrantReady polls /readyz through a throwaway store until the node answers.
func waitForQdrantReady(baseURL string) error {
	probe, err := NewVectorStore(logger.Nop(), Config{URL: baseURL, Collection: "readiness_probe", VectorDim: 1})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		err := probe.Ready(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ready check failed for %s: %w", baseURL, err)
		case <-time.After(200 * time.Millisecond):
		}
	}
}
