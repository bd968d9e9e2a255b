package qdrant

import (
	"errors"
	"testing"

	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

func TestTranslateFilterNestsMetadataKeys(t *testing.T) {
	got, err := translateFilter("search", vectorstore.Filter{
		vectorstore.MetaUserID:     "user-1",
		vectorstore.MetaDocumentID: "doc-1",
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	must, ok := got["must"].([]any)
	if !ok || len(must) != 2 {
		t.Fatalf("must: want 2 conditions got=%v", got["must"])
	}
	cond := findConditionByKey(must, "metadata.user_id")
	if cond == nil {
		t.Fatalf("missing metadata.user_id condition")
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != "user-1" {
		t.Fatalf("user match: got=%v", cond["match"])
	}
	if findConditionByKey(must, "metadata.document_id") == nil {
		t.Fatalf("missing metadata.document_id condition")
	}
}

func TestTranslateFilterRejectsEmptyOrBlank(t *testing.T) {
	for _, f := range []vectorstore.Filter{nil, {vectorstore.MetaUserID: ""}} {
		_, err := translateFilter("search", f)
		var oe *OperationError
		if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
			t.Fatalf("translateFilter(%v): want validation error got=%v", f, err)
		}
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
