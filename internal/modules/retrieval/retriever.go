// Package retrieval turns a query into a ranked, tenant-scoped set of passages: a filtered
// similarity search produces a candidate pool which a relevance scorer reorders.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/rag-backend/internal/observability"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

const maxUserIDLen = 256

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Scorer returns one relevance score per passage, aligned by index.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

type Config struct {
	// KCandidates is the size of the similarity pool handed to the scorer.
	KCandidates int
	// KFinal is the number of chunks kept when a query does not ask for a count.
	KFinal int
}

func DefaultConfig() Config {
	return Config{KCandidates: 8, KFinal: 3}
}

func ResolveConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		KCandidates: envutil.Int("RETRIEVER_K", def.KCandidates),
		KFinal:      envutil.Int("RERANKER_TOP_N_RETRIEVED_DOCS", def.KFinal),
	}
}

func (c Config) Validate() error {
	if c.KCandidates <= 0 {
		return fmt.Errorf("retriever: k_candidates must be positive (got %d): %w", c.KCandidates, pkgerrors.ErrInvalidConfig)
	}
	return c.checkFinal(c.KFinal)
}

func (c Config) checkFinal(k int) error {
	if k <= 0 {
		return fmt.Errorf("retriever: k_final must be positive (got %d): %w", k, pkgerrors.ErrInvalidConfig)
	}
	if k >= c.KCandidates {
		return fmt.Errorf("retriever: k_candidates (%d) must exceed k_final (%d): %w", c.KCandidates, k, pkgerrors.ErrInvalidConfig)
	}
	return nil
}

type Query struct {
	Text   string
	UserID string
	// K overrides Config.KFinal when positive.
	K          int
	DocumentID string
}

type Retriever struct {
	log      *logger.Logger
	store    vectorstore.Store
	embedder Embedder
	scorer   Scorer
	cfg      Config
	metrics  *observability.Metrics
}

func NewRetriever(log *logger.Logger, store vectorstore.Store, embedder Embedder, scorer Scorer, cfg Config, metrics *observability.Metrics) (*Retriever, error) {
	if store == nil || embedder == nil || scorer == nil {
		return nil, fmt.Errorf("retriever: store, embedder and scorer are required: %w", pkgerrors.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{
		log:      log.With("component", "Retriever"),
		store:    store,
		embedder: embedder,
		scorer:   scorer,
		cfg:      cfg,
		metrics:  metrics,
	}, nil
}

func (r *Retriever) Config() Config { return r.cfg }

// Retrieve returns at most K chunks owned by q.UserID ordered by descending relevance.
// Ties keep the similarity order of the candidate pool.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (out []RankedChunk, err error) {
	if err := ValidateUserID(q.UserID); err != nil {
		return nil, err
	}
	k := r.cfg.KFinal
	if q.K > 0 {
		k = q.K
	}
	if err := r.cfg.checkFinal(k); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "retrieval.Retrieve",
		attribute.Int("k_candidates", r.cfg.KCandidates),
		attribute.Int("k_final", k),
		attribute.Bool("document_scoped", q.DocumentID != ""),
	)
	defer span.End()

	start := time.Now()
	candidates := 0
	defer func() {
		status := "ok"
		if err != nil {
			status = pkgerrors.Code(err)
			span.RecordError(err)
		}
		r.metrics.ObserveRetrieval(status, time.Since(start), candidates)
	}()

	filter := vectorstore.Filter{vectorstore.MetaUserID: q.UserID}
	if docID := strings.TrimSpace(q.DocumentID); docID != "" {
		filter[vectorstore.MetaDocumentID] = docID
	}

	vec, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", pkgerrors.ErrRetrievalFailure, err)
	}
	matches, err := r.store.Search(ctx, vec, r.cfg.KCandidates, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w: %w", pkgerrors.ErrRetrievalFailure, err)
	}
	candidates = len(matches)
	for _, m := range matches {
		if owner := metaString(m.Metadata, vectorstore.MetaUserID); owner != q.UserID {
			r.log.Error("vector store returned a foreign chunk", "chunk_id", m.ID, "user_id", q.UserID)
			return nil, fmt.Errorf("chunk %s is not owned by the requesting user: %w", m.ID, pkgerrors.ErrTenantViolation)
		}
	}
	if len(matches) == 0 {
		return []RankedChunk{}, nil
	}

	passages := make([]string, len(matches))
	for i, m := range matches {
		passages[i] = m.Content
	}
	scores, err := r.scorer.Score(ctx, q.Text, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w: %w", pkgerrors.ErrRetrievalFailure, err)
	}
	if len(scores) != len(matches) {
		return nil, fmt.Errorf("rerank: got %d scores for %d passages: %w", len(scores), len(matches), pkgerrors.ErrRetrievalFailure)
	}

	out = make([]RankedChunk, len(matches))
	for i, m := range matches {
		out[i] = RankedChunk{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   m.Metadata,
			Similarity: m.Score,
			Relevance:  scores[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > k {
		out = out[:k]
	}
	r.log.Debug("retrieved", "candidates", len(matches), "kept", len(out))
	return out, nil
}

// ValidateUserID accepts a plain identifier: non-empty, no surrounding or embedded
// whitespace, no control characters.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required: %w", pkgerrors.ErrTenantViolation)
	}
	if len(userID) > maxUserIDLen {
		return fmt.Errorf("user id too long: %w", pkgerrors.ErrTenantViolation)
	}
	for _, r := range userID {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("user id is not a plain identifier: %w", pkgerrors.ErrTenantViolation)
		}
	}
	return nil
}
