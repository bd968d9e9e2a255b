package vectorstore

import (
	"reflect"
	"testing"
)

func TestFilterValidate(t *testing.T) {
	if err := (Filter{MetaUserID: "u1", MetaDocumentID: "d1"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (Filter{MetaUserID: " "}).Validate(); err == nil {
		t.Fatalf("Validate blank value: expected error")
	}
	if err := (Filter{"": "x"}).Validate(); err == nil {
		t.Fatalf("Validate blank key: expected error")
	}
}

func TestFilterKeysAndMatches(t *testing.T) {
	f := Filter{MetaUserID: "u1", MetaDocumentID: "d1"}
	if got := f.Keys(); !reflect.DeepEqual(got, []string{MetaDocumentID, MetaUserID}) {
		t.Fatalf("Keys: got=%v", got)
	}
	if !f.Matches(map[string]any{MetaUserID: "u1", MetaDocumentID: "d1", MetaPage: 2}) {
		t.Fatalf("Matches: want true")
	}
	if f.Matches(map[string]any{MetaUserID: "u2", MetaDocumentID: "d1"}) {
		t.Fatalf("Matches other tenant: want false")
	}
}
