package qdrant

import (
	"fmt"

	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

const (
	payloadContentKey  = "page_content"
	payloadMetadataKey = "metadata"
)

func metadataField(key string) string {
	return payloadMetadataKey + "." + key
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

// translateFilter turns an exact-match filter into a Qdrant "must" clause over the
// nested metadata payload. An empty filter is rejected: the store never scans unfiltered.
func translateFilter(op string, f vectorstore.Filter) (map[string]any, error) {
	if len(f) == 0 {
		return nil, opErr(op, OperationErrorValidation, "filter required", nil)
	}
	if err := f.Validate(); err != nil {
		return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("invalid filter: %v", err), err)
	}
	must := make([]any, 0, len(f))
	for _, k := range f.Keys() {
		must = append(must, matchCondition(metadataField(k), f[k]))
	}
	return map[string]any{"must": must}, nil
}
