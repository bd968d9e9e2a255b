package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/rag-backend/internal/pkg/httpx"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

const (
	payloadPointKey   = "_rag_point_id"
	maxErrorBodyBytes = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6a0b3d7e-52c4-4a59-9f1e-3c1d8e2b7a40")

// indexedFields get keyword payload indexes so tenant filters stay server-side and fast.
var indexedFields = []string{vectorstore.MetaUserID, vectorstore.MetaDocumentID}

type VectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
	retry   httpx.RetryPolicy

	mu       sync.Mutex
	ensured  bool
	distance string
}

var _ vectorstore.Store = (*VectorStore)(nil)

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &VectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		retry:    httpx.DefaultRetryPolicy(),
		distance: cfg.Distance,
	}
	log.Info(
		"Qdrant vector store selected",
		"provider", "qdrant",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return s, nil
}

// Ready probes the Qdrant readiness endpoint.
func (s *VectorStore) Ready(ctx context.Context) error {
	const op = "ready"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (s *VectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0].Vector)
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
		}
		if len(p.Vector) != dim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, dim, len(p.Vector)), nil)
		}
		out = append(out, map[string]any{
			"id":     pointID(id),
			"vector": p.Vector,
			"payload": map[string]any{
				payloadContentKey:  p.Content,
				payloadMetadataKey: clonePayload(p.Metadata),
				payloadPointKey:    id,
			},
		})
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": out}, nil)
}

func (s *VectorStore) Search(ctx context.Context, q []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	const op = "search"
	if len(q) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(q) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(q)), nil)
	}
	if topK <= 0 {
		topK = 10
	}
	qf, err := translateFilter(op, filter)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       qf,
	}
	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		if isNotFound(err) {
			s.log.Debug("qdrant collection missing; empty search", "collection", s.cfg.Collection)
			return []vectorstore.Match{}, nil
		}
		return nil, err
	}

	out := make([]vectorstore.Match, 0, len(raw))
	for _, item := range raw {
		m := vectorstore.Match{Score: s.normalizeScore(item.Score)}
		m.Content, _ = item.Payload[payloadContentKey].(string)
		m.Metadata, _ = item.Payload[payloadMetadataKey].(map[string]any)
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		if id, ok := item.Payload[payloadPointKey].(string); ok && strings.TrimSpace(id) != "" {
			m.ID = id
		} else {
			m.ID = decodePointID(item.ID)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *VectorStore) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) error {
	const op = "delete"
	qf, err := translateFilter(op, filter)
	if err != nil {
		return err
	}
	err = s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": qf}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ensureCollection creates the collection and its tenant indexes on first write, or
// verifies the vector size of an existing one.
func (s *VectorStore) ensureCollection(ctx context.Context, dim int) error {
	const op = "ensure_collection"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if s.cfg.VectorDim > 0 && dim != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, dim), nil)
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != dim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, dim, size), nil)
		}
		if d := strings.TrimSpace(info.Config.Params.Vectors.Distance); d != "" {
			s.distance = d
		}
	case isNotFound(err):
		create := map[string]any{"vectors": map[string]any{"size": dim, "distance": s.distanceOrDefault()}}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), create, nil); err != nil {
			return err
		}
		for _, field := range indexedFields {
			idx := map[string]any{"field_name": metadataField(field), "field_schema": "keyword"}
			if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), idx, nil); err != nil {
				return err
			}
		}
		s.log.Info("qdrant collection created", "collection", s.cfg.Collection, "vector_dim", dim)
	default:
		return err
	}
	s.ensured = true
	return nil
}

// doJSON performs one Qdrant call, retrying transient failures within the retry policy.
func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var payload []byte
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		payload = buf.Bytes()
	}
	ctx = ctxutil.Default(ctx)

	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		resp, err := s.doOnce(ctx, op, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt == s.retry.MaxRetries {
			break
		}
		s.log.Warn("qdrant call failed; retrying", "op", op, "attempt", attempt+1, "error", err)
		if sleepErr := httpx.Sleep(ctx, s.retry.Backoff(attempt, resp)); sleepErr != nil {
			break
		}
	}
	return lastErr
}

func (s *VectorStore) doOnce(ctx context.Context, op, method, path string, payload []byte, out any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if readErr != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return resp, &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return resp, nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return resp, nil
}

func (s *VectorStore) authorize(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") || strings.EqualFold(statusString, "completed") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pointID(id string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(id)).String()
}

func (s *VectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *VectorStore) distanceOrDefault() string {
	if strings.TrimSpace(s.distance) == "" {
		return "Cosine"
	}
	return s.distance
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *VectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
