package splitter

import (
	"fmt"
	"maps"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yungbote/rag-backend/internal/modules/ingestion/coalesce"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
)

const (
	MetaCategory = "category"
	MetaPage     = "page"
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// ResolveConfigFromEnv reads CHUNK_SIZE, CHUNK_OVERLAP and SEPARATORS (a JSON list).
func ResolveConfigFromEnv() (Config, error) {
	def := DefaultConfig()
	seps, err := envutil.JSONStrings("SEPARATORS", def.Separators)
	if err != nil {
		return Config{}, fmt.Errorf("SEPARATORS: %w", pkgerrors.ErrInvalidConfig)
	}
	cfg := Config{
		ChunkSize:    envutil.Int("CHUNK_SIZE", def.ChunkSize),
		ChunkOverlap: envutil.Int("CHUNK_OVERLAP", def.ChunkOverlap),
		Separators:   seps,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", c.ChunkSize, pkgerrors.ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap > c.ChunkSize {
		return fmt.Errorf("chunk overlap %d outside [0, %d]: %w", c.ChunkOverlap, c.ChunkSize, pkgerrors.ErrInvalidConfig)
	}
	if len(c.Separators) == 0 {
		return fmt.Errorf("separators must not be empty: %w", pkgerrors.ErrInvalidConfig)
	}
	return nil
}

// Chunk is an embedding-sized slice of a coalesced element.
type Chunk struct {
	Content  string
	Page     *int
	Metadata map[string]any
}

type Splitter struct {
	cfg   Config
	inner textsplitter.RecursiveCharacter
}

func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inner := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators(cfg.Separators),
	)
	return &Splitter{cfg: cfg, inner: inner}, nil
}

// Split cuts each element into chunks. Every chunk inherits its element's metadata,
// category and page.
func (s *Splitter) Split(elements []coalesce.Element) ([]Chunk, error) {
	var out []Chunk
	for i, el := range elements {
		if strings.TrimSpace(el.Content) == "" {
			continue
		}
		parts, err := s.inner.SplitText(el.Content)
		if err != nil {
			return nil, fmt.Errorf("split element %d: %w", i, err)
		}
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			meta := maps.Clone(el.Metadata)
			if meta == nil {
				meta = map[string]any{}
			}
			meta[MetaCategory] = el.Category
			if el.Page != nil {
				meta[MetaPage] = *el.Page
			}
			if cats := el.LayoutCategories(); cats != nil {
				meta[coalesce.MetaLayoutCategories] = append([]string(nil), cats...)
			}
			out = append(out, Chunk{Content: p, Page: el.Page, Metadata: meta})
		}
	}
	return out, nil
}
