package ingestion

import (
	"context"
	"maps"

	"github.com/yungbote/rag-backend/internal/modules/ingestion/coalesce"
	"github.com/yungbote/rag-backend/internal/platform/unstructured"
)

// Extractor turns a file into raw layout elements.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) ([]coalesce.Element, error)
}

// Partitioner is the layout API the default extractor sits on.
type Partitioner interface {
	Partition(ctx context.Context, fileName string, data []byte) ([]unstructured.Element, error)
}

const MetaElementType = "element_type"

// UnstructuredExtractor maps partition output onto layout categories.
type UnstructuredExtractor struct {
	client Partitioner
}

func NewUnstructuredExtractor(client Partitioner) *UnstructuredExtractor {
	return &UnstructuredExtractor{client: client}
}

func (x *UnstructuredExtractor) Extract(ctx context.Context, fileName string, data []byte) ([]coalesce.Element, error) {
	raw, err := x.client.Partition(ctx, fileName, data)
	if err != nil {
		return nil, err
	}
	out := make([]coalesce.Element, 0, len(raw))
	for _, el := range raw {
		cat, keep := categoryFor(el.Type)
		if !keep {
			continue
		}
		meta := maps.Clone(el.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		meta[MetaElementType] = el.Type
		out = append(out, coalesce.Element{
			Content:  el.Text,
			Category: cat,
			Page:     el.Page,
			Metadata: meta,
		})
	}
	return out, nil
}

func categoryFor(elementType string) (string, bool) {
	switch elementType {
	case "PageBreak":
		return "", false
	case "Title":
		return coalesce.CategoryTitle, true
	case "Header":
		return coalesce.CategoryHeading, true
	case "NarrativeText", "ListItem", "UncategorizedText", "Text", "Address", "EmailAddress", "Formula", "Footer":
		return coalesce.CategoryText, true
	case "Table":
		return coalesce.CategoryTable, true
	case "CodeSnippet":
		return coalesce.CategoryCode, true
	case "Image", "Figure":
		return coalesce.CategoryFigure, true
	case "FigureCaption":
		return coalesce.CategoryCaption, true
	default:
		return coalesce.CategoryUnknown, true
	}
}
