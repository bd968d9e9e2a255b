package coalesce

import (
	"fmt"
	"maps"
	"strings"

	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

// Layout categories produced by the extractor. The set is open: any other string is
// treated as its own category.
const (
	CategoryTitle   = "Title"
	CategoryHeading = "Heading"
	CategoryText    = "Text"
	CategoryTable   = "Table"
	CategoryCode    = "Code"
	CategoryFigure  = "Figure"
	CategoryCaption = "Caption"
	CategoryUnknown = "Unknown"
)

// MetaLayoutCategories is added to every coalesced chunk.
const MetaLayoutCategories = "layout_categories"

// Element is one raw unit from document extraction, and also the shape of a coalesced chunk.
type Element struct {
	Content  string
	Category string
	Page     *int
	Metadata map[string]any
}

// LayoutCategories returns the distinct source categories recorded on a coalesced chunk.
func (e Element) LayoutCategories() []string {
	if e.Metadata == nil {
		return nil
	}
	cats, _ := e.Metadata[MetaLayoutCategories].([]string)
	return cats
}

func (e Element) clone() Element {
	out := e
	out.Metadata = maps.Clone(e.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if e.Page != nil {
		p := *e.Page
		out.Page = &p
	}
	if cats := e.LayoutCategories(); cats != nil {
		out.Metadata[MetaLayoutCategories] = append([]string(nil), cats...)
	}
	return out
}

// Validate reports malformed elements. Coalesce never fails on them; it degrades
// a missing category to Unknown, so callers use this only for diagnostics.
func Validate(elements []Element) []error {
	var errs []error
	for i, el := range elements {
		if strings.TrimSpace(el.Category) == "" {
			errs = append(errs, fmt.Errorf("element %d: missing category: %w", i, pkgerrors.ErrCoalesceInput))
		}
		if el.Page != nil && *el.Page < 0 {
			errs = append(errs, fmt.Errorf("element %d: negative page %d: %w", i, *el.Page, pkgerrors.ErrCoalesceInput))
		}
	}
	return errs
}

func normalize(el Element) Element {
	out := el.clone()
	out.Category = strings.TrimSpace(out.Category)
	if out.Category == "" {
		out.Category = CategoryUnknown
	}
	if out.Page != nil && *out.Page < 0 {
		out.Page = nil
	}
	return out
}

func isHeading(category string) bool {
	switch strings.ToLower(category) {
	case "title", "heading", "header":
		return true
	}
	return false
}
