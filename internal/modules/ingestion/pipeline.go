// Package ingestion indexes uploaded documents: layout extraction, coalescing, splitting,
// embedding and a tenant-stamped upsert into the vector store.
package ingestion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/rag-backend/internal/domain"
	"github.com/yungbote/rag-backend/internal/modules/ingestion/coalesce"
	"github.com/yungbote/rag-backend/internal/modules/ingestion/splitter"
	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Registry records which documents a user has ingested.
type Registry interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	Exists(dbc dbctx.Context, userID, documentID string) (bool, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.Document, error)
	Delete(dbc dbctx.Context, userID, documentID string) error
}

type Config struct {
	Coalesce         coalesce.Config
	EmbedBatch       int
	EmbedConcurrency int
}

func ResolveConfigFromEnv() Config {
	cc := coalesce.IngestConfig()
	cc.MinLen = envutil.Int("COALESCE_MIN_LEN", cc.MinLen)
	return Config{
		Coalesce:         cc,
		EmbedBatch:       envutil.Int("INGEST_EMBED_BATCH", 64),
		EmbedConcurrency: envutil.Int("INGEST_EMBED_CONCURRENCY", 4),
	}
}

type Input struct {
	UserID      string
	FileName    string
	ContentType string
	Data        []byte
}

type Result struct {
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

type Pipeline struct {
	log       *logger.Logger
	extractor Extractor
	splitter  *splitter.Splitter
	embedder  Embedder
	store     vectorstore.Store
	registry  Registry
	cfg       Config
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewPipeline(log *logger.Logger, extractor Extractor, split *splitter.Splitter, embedder Embedder, store vectorstore.Store, registry Registry, cfg Config, metrics *observability.Metrics) (*Pipeline, error) {
	if extractor == nil || split == nil || embedder == nil || store == nil || registry == nil {
		return nil, fmt.Errorf("ingestion: missing dependency: %w", pkgerrors.ErrInvalidConfig)
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 64
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		log:       log.With("component", "IngestionPipeline"),
		extractor: extractor,
		splitter:  split,
		embedder:  embedder,
		store:     store,
		registry:  registry,
		cfg:       cfg,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// DocumentID is the first 16 hex characters of the SHA-1 of the file bytes.
func DocumentID(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:16]
}

// PointID is unique per tenant so two users indexing the same file never share a point.
func PointID(userID, docID string, n int) string {
	return userID + ":" + docID + ":" + strconv.Itoa(n)
}

// Ingest indexes one file for one user. Any failure after the first upsert removes
// every vector written for the document; nothing is registered on failure.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (res Result, err error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Result{}, fmt.Errorf("ingest: user_id required: %w", pkgerrors.ErrTenantViolation)
	}
	if len(in.Data) == 0 {
		return Result{}, fmt.Errorf("ingest: empty file: %w", pkgerrors.ErrInvalidArgument)
	}
	docID := DocumentID(in.Data)
	log := p.log.With("user_id", in.UserID, "document_id", docID, "file_name", in.FileName)

	ctx, span := observability.StartSpan(ctx, "ingestion.Ingest",
		attribute.String("document_id", docID),
		attribute.Int("size_bytes", len(in.Data)),
	)
	defer span.End()
	chunksOut := 0
	defer func() {
		status := "ok"
		if err != nil {
			status = pkgerrors.Code(err)
			span.RecordError(err)
		}
		p.metrics.ObserveIngest(status, chunksOut)
	}()

	exists, err := p.registry.Exists(dbctx.New(ctx), in.UserID, docID)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: registry lookup: %w", err)
	}
	if exists {
		return Result{}, fmt.Errorf("document id already exists: %w", pkgerrors.ErrConflict)
	}

	elements, err := p.extractor.Extract(ctx, in.FileName, in.Data)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: extract: %w", err)
	}
	for _, verr := range coalesce.Validate(elements) {
		log.Warn("malformed layout element", "error", verr)
	}
	coalesced := coalesce.Coalesce(elements, p.cfg.Coalesce)
	chunks, err := p.splitter.Split(coalesced)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: split: %w", err)
	}
	log.Debug("document prepared", "elements", len(elements), "coalesced", len(coalesced), "chunks", len(chunks))

	ingestedAt := p.now().UTC()
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta[vectorstore.MetaUserID] = in.UserID
		meta[vectorstore.MetaDocumentID] = docID
		meta[vectorstore.MetaFileName] = in.FileName
		meta[vectorstore.MetaIngestedAt] = ingestedAt.Format(time.RFC3339)
		if c.Page != nil {
			meta[vectorstore.MetaPage] = *c.Page
		}
		points[i] = vectorstore.Point{
			ID:       PointID(in.UserID, docID, i),
			Content:  c.Content,
			Metadata: meta,
		}
	}

	if len(points) > 0 {
		if err := p.embedPoints(ctx, points); err != nil {
			return Result{}, fmt.Errorf("ingest: embed: %w", err)
		}
		if err := p.store.Upsert(ctx, points); err != nil {
			p.rollback(ctx, log, in.UserID, docID)
			return Result{}, fmt.Errorf("ingest: upsert: %w", err)
		}
	}

	doc := &types.Document{
		UserID:      in.UserID,
		DocumentID:  docID,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		SizeBytes:   int64(len(in.Data)),
		Chunks:      len(points),
		IngestedAt:  ingestedAt,
	}
	if err := p.registry.Create(dbctx.New(ctx), doc); err != nil {
		p.rollback(ctx, log, in.UserID, docID)
		return Result{}, fmt.Errorf("ingest: register: %w", err)
	}

	chunksOut = len(points)
	log.Info("document ingested", "chunks", chunksOut)
	return Result{DocumentID: docID, FileName: in.FileName, Chunks: chunksOut, IngestedAt: ingestedAt}, nil
}

func (p *Pipeline) embedPoints(ctx context.Context, points []vectorstore.Point) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EmbedConcurrency)
	for start := 0; start < len(points); start += p.cfg.EmbedBatch {
		end := min(start+p.cfg.EmbedBatch, len(points))
		batch := points[start:end]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			inputs := make([]string, len(batch))
			for i, pt := range batch {
				inputs[i] = pt.Content
			}
			vecs, err := p.embedder.Embed(gctx, inputs)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Vector = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// rollback deletes the document's vectors with a context that outlives cancellation of
// the request.
func (p *Pipeline) rollback(ctx context.Context, log *logger.Logger, userID, docID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	err := p.store.DeleteByFilter(cleanupCtx, vectorstore.Filter{
		vectorstore.MetaUserID:     userID,
		vectorstore.MetaDocumentID: docID,
	})
	if err != nil {
		log.Error("rollback of partial upsert failed", "error", err)
	}
}

func (p *Pipeline) List(ctx context.Context, userID string) ([]*types.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("list documents: user_id required: %w", pkgerrors.ErrTenantViolation)
	}
	return p.registry.ListByUser(dbctx.New(ctx), userID)
}

// Delete removes a document's vectors and its registry entry.
func (p *Pipeline) Delete(ctx context.Context, userID, documentID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("delete document: user_id required: %w", pkgerrors.ErrTenantViolation)
	}
	exists, err := p.registry.Exists(dbctx.New(ctx), userID, documentID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	if err := p.store.DeleteByFilter(ctx, vectorstore.Filter{
		vectorstore.MetaUserID:     userID,
		vectorstore.MetaDocumentID: documentID,
	}); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := p.registry.Delete(dbctx.New(ctx), userID, documentID); err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
		return err
	}
	p.log.Info("document deleted", "user_id", userID, "document_id", documentID)
	return nil
}
