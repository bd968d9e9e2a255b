// Package vectorstore defines the storage contract shared by the Qdrant and chromem
// backends. Filters are exact-match and applied by the backend, never client-side.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Metadata keys written on every indexed chunk.
const (
	MetaUserID        = "user_id"
	MetaDocumentID    = "document_id"
	MetaFileName      = "file_name"
	MetaPage          = "page"
	MetaIngestedAt    = "ingested_at"
	MetaInteractionID = "interaction_id"
)

// Filter is a conjunction of exact-match conditions on metadata keys.
type Filter map[string]string

// Keys returns the filter keys in a stable order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects blank keys and values; a blank condition would match nothing or everything
// depending on the backend.
func (f Filter) Validate() error {
	for k, v := range f {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("vectorstore: blank filter key")
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("vectorstore: blank value for filter key %q", k)
		}
	}
	return nil
}

// Matches reports whether metadata satisfies every condition in f.
func (f Filter) Matches(meta map[string]any) bool {
	for k, v := range f {
		if fmt.Sprint(meta[k]) != v {
			return false
		}
	}
	return true
}

type Point struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

type Store interface {
	Upsert(ctx context.Context, points []Point) error
	// Search returns at most topK matches ordered by descending similarity.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	DeleteByFilter(ctx context.Context, filter Filter) error
}
