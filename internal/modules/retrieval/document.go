package retrieval

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

// Document is the record handed to the model and streamed to the caller.
type Document struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Page       *int   `json:"page"`
	DocumentID string `json:"document_id"`
}

// RankedChunk is a candidate after reranking.
type RankedChunk struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Similarity float64
	Relevance  float64
}

func (c RankedChunk) Document() Document {
	return Document{
		Content:    c.Content,
		Source:     metaString(c.Metadata, vectorstore.MetaFileName),
		Page:       metaPage(c.Metadata),
		DocumentID: metaString(c.Metadata, vectorstore.MetaDocumentID),
	}
}

func Documents(chunks []RankedChunk) []Document {
	out := make([]Document, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Document())
	}
	return out
}

// MarshalDocuments renders documents as a JSON array; nil becomes [].
func MarshalDocuments(docs []Document) ([]byte, error) {
	if docs == nil {
		docs = []Document{}
	}
	return json.Marshal(docs)
}

func UnmarshalDocuments(raw []byte) ([]Document, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func metaPage(meta map[string]any) *int {
	var n int
	switch v := meta[vectorstore.MetaPage].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}
