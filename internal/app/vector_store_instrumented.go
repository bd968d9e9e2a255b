package app

import (
	"context"
	"time"

	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type instrumentedVectorStore struct {
	provider string
	inner    vectorstore.Store
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner vectorstore.Store, metrics *observability.Metrics) vectorstore.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{provider: provider, inner: inner, metrics: metrics}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, points)
	s.observe("upsert", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Search(ctx context.Context, q []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, q, topK, filter)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) error {
	start := time.Now()
	err := s.inner.DeleteByFilter(ctx, filter)
	s.observe("delete_by_filter", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) observe(operation string, err error, dur time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorStoreOperation(s.provider, operation, status, dur)
}

// Ready delegates to backends that expose a readiness probe.
func (s *instrumentedVectorStore) Ready(ctx context.Context) error {
	if rc, ok := s.inner.(interface{ Ready(context.Context) error }); ok {
		return rc.Ready(ctx)
	}
	return nil
}
