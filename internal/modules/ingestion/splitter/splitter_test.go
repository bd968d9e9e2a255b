package splitter

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/rag-backend/internal/modules/ingestion/coalesce"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{ChunkSize: 0, ChunkOverlap: 0, Separators: []string{" "}},
		{ChunkSize: 10, ChunkOverlap: 11, Separators: []string{" "}},
		{ChunkSize: 10, ChunkOverlap: 2},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, pkgerrors.ErrInvalidConfig) {
			t.Fatalf("case %d: want ErrInvalidConfig got=%v", i, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "30")
	t.Setenv("SEPARATORS", `["\n\n", ". "]`)
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.ChunkSize != 300 || cfg.ChunkOverlap != 30 || len(cfg.Separators) != 2 {
		t.Fatalf("ResolveConfigFromEnv: got=%+v", cfg)
	}

	t.Setenv("SEPARATORS", `not json`)
	if _, err := ResolveConfigFromEnv(); !errors.Is(err, pkgerrors.ErrInvalidConfig) {
		t.Fatalf("bad SEPARATORS: want ErrInvalidConfig got=%v", err)
	}
}

func TestSplitCarriesMetadata(t *testing.T) {
	s, err := New(Config{ChunkSize: 40, ChunkOverlap: 0, Separators: []string{"\n\n", "\n", " ", ""}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := 3
	text := strings.Repeat("lorem ipsum dolor ", 10)
	chunks, err := s.Split([]coalesce.Element{
		{
			Content:  text,
			Category: coalesce.CategoryText,
			Page:     &p,
			Metadata: map[string]any{coalesce.MetaLayoutCategories: []string{"Text"}, "file_name": "a.pdf"},
		},
		{Content: "   ", Category: coalesce.CategoryText},
	})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Split: want several chunks got=%d", len(chunks))
	}
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c.Content); n > 40 {
			t.Fatalf("chunk too long: %d", n)
		}
		if c.Metadata[MetaPage] != 3 || c.Metadata["file_name"] != "a.pdf" || c.Metadata[MetaCategory] != "Text" {
			t.Fatalf("metadata not carried: %v", c.Metadata)
		}
	}
}
