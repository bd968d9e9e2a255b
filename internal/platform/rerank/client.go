// Package rerank scores (query, passage) pairs with a hosted cross-encoder. It speaks
// the text-embeddings-inference /rerank protocol and the Cohere-style /v1/rerank one.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/rag-backend/internal/pkg/httpx"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

const (
	APITEI    = "tei"
	APICohere = "cohere"
)

type Config struct {
	URL     string
	API     string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retry   httpx.RetryPolicy
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:     strings.TrimRight(envutil.String("RERANKER_URL", ""), "/"),
		API:     strings.ToLower(envutil.String("RERANKER_API", APITEI)),
		Model:   envutil.String("RERANKER_MODEL_NAME", "BAAI/bge-reranker-base"),
		APIKey:  envutil.String("RERANKER_API_KEY", ""),
		Timeout: envutil.Seconds("RERANKER_TIMEOUT_SECONDS", 30*time.Second),
		Retry:   httpx.DefaultRetryPolicy(),
	}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("RERANKER_URL is required")
	}
	if cfg.API != APITEI && cfg.API != APICohere {
		return Config{}, fmt.Errorf("invalid RERANKER_API=%q; expected %q or %q", cfg.API, APITEI, APICohere)
	}
	return cfg, nil
}

type Client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("reranker url required")
	}
	if cfg.API == "" {
		cfg.API = APITEI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:  log.With("service", "RerankClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type scoredIndex struct {
	Index          int      `json:"index"`
	Score          *float64 `json:"score"`
	RelevanceScore *float64 `json:"relevance_score"`
}

func (s scoredIndex) value() (float64, bool) {
	switch {
	case s.Score != nil:
		return *s.Score, true
	case s.RelevanceScore != nil:
		return *s.RelevanceScore, true
	}
	return 0, false
}

// Score returns one relevance score per passage, aligned with the input order.
// Higher is more relevant. Any missing score is an error.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	var (
		path string
		body any
	)
	if c.cfg.API == APICohere {
		path = "/v1/rerank"
		body = map[string]any{"model": c.cfg.Model, "query": query, "documents": passages, "top_n": len(passages)}
	} else {
		path = "/rerank"
		body = map[string]any{"query": query, "texts": passages, "raw_scores": false, "truncate": true}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("rerank encode request: %w", err)
	}

	raw, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	items, err := decodeScores(raw)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, it := range items {
		v, ok := it.value()
		if !ok || it.Index < 0 || it.Index >= len(passages) {
			return nil, fmt.Errorf("rerank: malformed score entry index=%d", it.Index)
		}
		scores[it.Index] = v
		seen[it.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank: missing score for passage %d of %d", i, len(passages))
		}
	}
	return scores, nil
}

func decodeScores(raw []byte) ([]scoredIndex, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []scoredIndex
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("rerank decode: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Results []scoredIndex `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("rerank decode: %w", err)
	}
	return wrapped.Results, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		var raw []byte
		if err == nil {
			raw, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			_ = resp.Body.Close()
			if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
				err = &httpx.StatusError{Service: "rerank", StatusCode: resp.StatusCode, Body: string(raw)}
			}
		}
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt >= c.cfg.Retry.MaxRetries {
			return nil, err
		}
		sleepFor := c.cfg.Retry.Backoff(attempt, resp)
		c.log.Warn("rerank request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
	}
}
