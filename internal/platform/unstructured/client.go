// Package unstructured partitions documents into layout elements through the
// Unstructured partition API.
package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/rag-backend/internal/pkg/httpx"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

const partitionPath = "/general/v0/general"

type Config struct {
	URL       string
	APIKey    string
	Strategy  string
	Languages []string
	Timeout   time.Duration
	Retry     httpx.RetryPolicy
}

// ResolveConfigFromEnv reads UNSTRUCTURED_URL, UNSTRUCTURED_API_KEY, STRATEGY and
// OCR_LANGUAGES (OCR_LANGUANGES is accepted for older deployments).
func ResolveConfigFromEnv() (Config, error) {
	langs := envutil.StringList("OCR_LANGUAGES", nil)
	if len(langs) == 0 {
		langs = envutil.StringList("OCR_LANGUANGES", []string{"eng"})
	}
	cfg := Config{
		URL:       strings.TrimRight(envutil.String("UNSTRUCTURED_URL", "http://localhost:8000"), "/"),
		APIKey:    envutil.String("UNSTRUCTURED_API_KEY", ""),
		Strategy:  envutil.String("STRATEGY", "hi_res"),
		Languages: langs,
		Timeout:   envutil.Seconds("UNSTRUCTURED_TIMEOUT_SECONDS", 300*time.Second),
		Retry:     httpx.DefaultRetryPolicy(),
	}
	switch cfg.Strategy {
	case "auto", "fast", "hi_res", "ocr_only":
	default:
		return Config{}, fmt.Errorf("invalid STRATEGY=%q; expected auto, fast, hi_res or ocr_only", cfg.Strategy)
	}
	return cfg, nil
}

// Element is one partitioned unit as returned by the API.
type Element struct {
	Type     string
	Text     string
	Page     *int
	Metadata map[string]any
}

type apiElement struct {
	Type      string         `json:"type"`
	ElementID string         `json:"element_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
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
		return nil, fmt.Errorf("unstructured url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	return &Client{
		log:  log.With("service", "UnstructuredClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Partition uploads one file and returns its elements in document order.
func (c *Client) Partition(ctx context.Context, fileName string, data []byte) ([]Element, error) {
	body, contentType, err := c.buildForm(fileName, data)
	if err != nil {
		return nil, err
	}
	raw, err := c.post(ctx, body, contentType)
	if err != nil {
		return nil, err
	}

	var items []apiElement
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unstructured decode: %w", err)
	}
	out := make([]Element, 0, len(items))
	for _, it := range items {
		el := Element{Type: it.Type, Text: it.Text, Metadata: map[string]any{}}
		for k, v := range it.Metadata {
			el.Metadata[k] = v
		}
		if it.ElementID != "" {
			el.Metadata["element_id"] = it.ElementID
		}
		if p, ok := pageNumber(it.Metadata["page_number"]); ok {
			el.Page = &p
		}
		out = append(out, el)
	}
	c.log.Debug("document partitioned", "file_name", fileName, "elements", len(out), "strategy", c.cfg.Strategy)
	return out, nil
}

func pageNumber(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), n >= 0
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil && i >= 0
	}
	return 0, false
}

func (c *Client) buildForm(fileName string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("unstructured form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("unstructured form: %w", err)
	}
	fields := [][2]string{{"strategy", c.cfg.Strategy}}
	for _, l := range c.cfg.Languages {
		fields = append(fields, [2]string{"languages", l})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("unstructured form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("unstructured form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+partitionPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("unstructured-api-key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		var raw []byte
		if err == nil {
			raw, err = io.ReadAll(io.LimitReader(resp.Body, 64<<20))
			_ = resp.Body.Close()
			if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
				err = &httpx.StatusError{Service: "unstructured", StatusCode: resp.StatusCode, Body: string(raw)}
			}
		}
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt >= c.cfg.Retry.MaxRetries {
			return nil, err
		}
		sleepFor := c.cfg.Retry.Backoff(attempt, resp)
		c.log.Warn("unstructured request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
	}
}
