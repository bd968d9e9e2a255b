// Package chromem is an embedded vector store backed by chromem-go. Each tenant gets
// its own collection and every query also carries the metadata filter, so tenants
// are isolated twice over.
package chromem

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type Config struct {
	// Path enables on-disk persistence; empty keeps everything in memory.
	Path       string
	Compress   bool
	Collection string
}

func ResolveConfigFromEnv() Config {
	return Config{
		Path:       envutil.String("CHROMEM_PATH", ""),
		Compress:   envutil.Bool("CHROMEM_COMPRESS", false),
		Collection: envutil.FirstString("documents", "DOCUMENTS_COLLECTION"),
	}
}

var errEmbeddingRequired = errors.New("chromem: embeddings must be supplied by the caller")

// Store implements vectorstore.Store.
type Store struct {
	log    *logger.Logger
	cfg    Config
	db     *chromemgo.DB
	mu     sync.RWMutex
	embedF chromemgo.EmbeddingFunc
}

var _ vectorstore.Store = (*Store)(nil)

func New(log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		cfg.Collection = "documents"
	}
	var (
		db  *chromemgo.DB
		err error
	)
	if cfg.Path == "" {
		db = chromemgo.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create chromem dir: %w", err)
		}
		db, err = chromemgo.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	log.Info("chromem vector store selected", "provider", "chromem", "path", cfg.Path, "collection", cfg.Collection)
	return &Store{
		log: log.With("service", "ChromemVectorStore"),
		cfg: cfg,
		db:  db,
		embedF: func(context.Context, string) ([]float32, error) {
			return nil, errEmbeddingRequired
		},
	}, nil
}

func (s *Store) collectionName(userID string) string {
	sum := sha1.Sum([]byte(userID))
	return s.cfg.Collection + "_" + hex.EncodeToString(sum[:8])
}

func (s *Store) collection(userID string) (*chromemgo.Collection, error) {
	return s.db.GetOrCreateCollection(s.collectionName(userID), map[string]string{vectorstore.MetaUserID: userID}, s.embedF)
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	byUser := map[string][]chromemgo.Document{}
	var users []string
	for _, p := range points {
		userID, _ := p.Metadata[vectorstore.MetaUserID].(string)
		if strings.TrimSpace(userID) == "" {
			return fmt.Errorf("chromem: point %q missing user_id", p.ID)
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("chromem: point %q has empty vector", p.ID)
		}
		if _, ok := byUser[userID]; !ok {
			users = append(users, userID)
		}
		byUser[userID] = append(byUser[userID], chromemgo.Document{
			ID:        p.ID,
			Content:   p.Content,
			Embedding: p.Vector,
			Metadata:  encodeMetadata(p.Metadata),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, userID := range users {
		col, err := s.collection(userID)
		if err != nil {
			return fmt.Errorf("chromem collection: %w", err)
		}
		if err := col.AddDocuments(ctx, byUser[userID], 1); err != nil {
			return fmt.Errorf("chromem add documents: %w", err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, q []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	userID, err := requireTenant(filter)
	if err != nil {
		return nil, err
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("chromem: query vector required")
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(userID)
	if err != nil {
		return nil, fmt.Errorf("chromem collection: %w", err)
	}
	count := col.Count()
	if count == 0 {
		return []vectorstore.Match{}, nil
	}
	if topK > count {
		topK = count
	}

	var results []chromemgo.Result
	// chromem can reject nResults even after the Count clamp; step down until it answers.
	for n := topK; n > 0; n-- {
		results, err = col.QueryEmbedding(ctx, q, n, map[string]string(filter), nil)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]vectorstore.Match, 0, len(results))
	for _, r := range results {
		out = append(out, vectorstore.Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Content:  r.Content,
			Metadata: decodeMetadata(r.Metadata),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) error {
	userID, err := requireTenant(filter)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(userID)
	if err != nil {
		return fmt.Errorf("chromem collection: %w", err)
	}
	if err := col.Delete(ctx, map[string]string(filter), nil); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func requireTenant(filter vectorstore.Filter) (string, error) {
	if err := filter.Validate(); err != nil {
		return "", err
	}
	userID := filter[vectorstore.MetaUserID]
	if userID == "" {
		return "", fmt.Errorf("chromem: filter must include %s", vectorstore.MetaUserID)
	}
	return userID, nil
}

// encodeMetadata flattens values to strings; non-strings are stored as JSON.
func encodeMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case nil:
		case string:
			out[k] = typed
		default:
			raw, err := json.Marshal(typed)
			if err != nil {
				out[k] = fmt.Sprint(typed)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}

func decodeMetadata(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch {
		case k == vectorstore.MetaPage:
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
			out[k] = v
		case strings.HasPrefix(v, "[") || strings.HasPrefix(v, "{"):
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				out[k] = decoded
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}
