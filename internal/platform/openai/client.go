package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/pkg/httpx"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// Config targets any OpenAI-compatible endpoint; LLM_HOST points it at a local Ollama.
type Config struct {
	BaseURL     string
	APIKey      string
	ChatModel   string
	EmbedModel  string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:    strings.TrimRight(envutil.FirstString("https://api.openai.com", "OPENAI_BASE_URL", "LLM_HOST"), "/"),
		APIKey:     envutil.String("OPENAI_API_KEY", ""),
		ChatModel:  envutil.FirstString("gpt-4o-mini", "CHAT_MODEL", "OPENAI_MODEL"),
		EmbedModel: envutil.FirstString("text-embedding-3-small", "EMBEDDING_MODEL", "OPENAI_EMBED_MODEL"),
		Timeout:    envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 4),
	}
	if raw := envutil.String("OPENAI_TEMPERATURE", ""); raw != "" {
		low := strings.ToLower(raw)
		if low != "off" && low != "none" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE=%q", raw)
			}
			cfg.Temperature = &f
		}
	}
	if cfg.APIKey == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
		return Config{}, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg, nil
}

type Client struct {
	log     *logger.Logger
	cfg     Config
	http    *http.Client
	metrics *observability.Metrics
}

func NewClient(log *logger.Logger, cfg Config, metrics *observability.Metrics) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("openai base url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &Client{
		log:     log.With("service", "OpenAIClient"),
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
	}, nil
}

func (c *Client) ChatModel() string { return c.cfg.ChatModel }

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// send issues a request and returns a 2xx response with an open body. Transport errors
// and retryable statuses are retried with backoff until the budget runs out.
func (c *Client) send(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai encode request: %w", err)
	}
	policy := httpx.DefaultRetryPolicy()
	policy.MaxRetries = c.cfg.MaxRetries
	policy.BaseDelay = time.Second
	policy.MaxDelay = 10 * time.Second

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := c.newRequest(ctx, http.MethodPost, path, payload)
		if err != nil {
			return nil, err
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			err = &httpx.StatusError{Service: "openai", StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if !httpx.IsRetryableError(err) || attempt >= policy.MaxRetries {
			return nil, err
		}
		sleepFor := policy.Backoff(attempt, resp)
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", policy.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		return strconv.Itoa(sc.HTTPStatusCode())
	}
	return "error"
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	start := time.Now()
	const path = "/v1/embeddings"
	resp, err := c.send(ctx, path, embeddingsRequest{Model: c.cfg.EmbedModel, Input: clean}, "")
	if err != nil {
		c.metrics.ObserveLLMRequest(c.cfg.EmbedModel, path, statusLabel(err), time.Since(start), 0, 0)
		return nil, err
	}
	defer resp.Body.Close()

	var decoded embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openai decode embeddings: %w", err)
	}
	c.metrics.ObserveLLMRequest(c.cfg.EmbedModel, path, "ok", time.Since(start), decoded.Usage.PromptTokens, 0)

	out := make([][]float32, len(clean))
	for pos, d := range decoded.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s", i, len(clean), len(decoded.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
