package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsSecretsAndHashesUsers(t *testing.T) {
	got := sanitizeKVs([]interface{}{
		"api_key", "sk-123",
		"user_id", "user-42",
		"Authorization", "Bearer abc",
		"count", 3,
	})
	if len(got) != 8 {
		t.Fatalf("len: want=8 got=%d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("api_key: want=[REDACTED] got=%v", got[1])
	}
	hashed, ok := got[3].(string)
	if !ok || !strings.HasPrefix(hashed, "hash:") || strings.Contains(hashed, "user-42") {
		t.Fatalf("user_id: want hashed value got=%v", got[3])
	}
	if got[5] != "[REDACTED]" {
		t.Fatalf("authorization: want=[REDACTED] got=%v", got[5])
	}
	if got[7] != 3 {
		t.Fatalf("count: want=3 got=%v", got[7])
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	got := sanitizeKVs([]interface{}{"component", "retriever", "orphan"})
	if len(got) != 3 || got[2] != "orphan" {
		t.Fatalf("dangling key: got=%v", got)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEifQ.sig") {
		t.Fatalf("expected jwt-shaped string to be detected")
	}
	if looksLikeJWT("plain.text") {
		t.Fatalf("two-part string should not be treated as jwt")
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("component", "x").Info("discarded", "k", "v")
}
