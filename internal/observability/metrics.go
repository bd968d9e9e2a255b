package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/rag-backend/internal/platform/envutil"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver, so callers never need to check.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	retrievals      *prometheus.CounterVec
	retrievalTime   prometheus.Histogram
	retrievalPool   prometheus.Histogram
	ingests         *prometheus.CounterVec
	ingestChunks    prometheus.Counter
	turns           *prometheus.CounterVec
	turnLatency     prometheus.Histogram
	toolLoops       prometheus.Counter
	streamEvents    *prometheus.CounterVec
	streamConsumers prometheus.Gauge
	vectorOps       *prometheus.CounterVec
	vectorLatency   *prometheus.HistogramVec
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_api_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "rag_api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_llm_requests_total",
			Help: "Model API calls by model, endpoint and status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_llm_request_duration_seconds",
			Help:    "Model API call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model", "endpoint"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_llm_tokens_total",
			Help: "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_retrievals_total",
			Help: "Retrieval requests by outcome.",
		}, []string{"status"}),
		retrievalTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieval_duration_seconds",
			Help:    "End-to-end retrieval latency including reranking.",
			Buckets: prometheus.DefBuckets,
		}),
		retrievalPool: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieval_candidates",
			Help:    "Candidates returned by the vector store before reranking.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		ingests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_ingests_total",
			Help: "Document ingests by outcome.",
		}, []string{"status"}),
		ingestChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "rag_ingest_chunks_total",
			Help: "Chunks indexed.",
		}),
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_chat_turns_total",
			Help: "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_chat_turn_duration_seconds",
			Help:    "Conversation turn latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		toolLoops: f.NewCounter(prometheus.CounterOpts{
			Name: "rag_tool_loop_violations_total",
			Help: "Model responses that requested a tool after the tool round was spent.",
		}),
		streamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_stream_events_total",
			Help: "Events written to client streams by kind.",
		}, []string{"kind"}),
		streamConsumers: f.NewGauge(prometheus.GaugeOpts{
			Name: "rag_stream_consumers",
			Help: "Open client streams.",
		}),
		vectorOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_vector_store_operations_total",
			Help: "Vector store calls by provider, operation and status.",
		}, []string{"provider", "operation", "status"}),
		vectorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_vector_store_operation_duration_seconds",
			Help:    "Vector store call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = orUnknown(method), orUnknown(route), orUnknown(status)
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model, endpoint = orUnknown(model), orUnknown(endpoint)
	m.llmRequests.WithLabelValues(model, endpoint, orUnknown(status)).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveRetrieval(status string, dur time.Duration, candidates int) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(orUnknown(status)).Inc()
	m.retrievalTime.Observe(dur.Seconds())
	if candidates >= 0 {
		m.retrievalPool.Observe(float64(candidates))
	}
}

func (m *Metrics) ObserveIngest(status string, chunks int) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(orUnknown(status)).Inc()
	if chunks > 0 {
		m.ingestChunks.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveTurn(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(orUnknown(outcome)).Inc()
	m.turnLatency.Observe(dur.Seconds())
}

func (m *Metrics) IncToolLoopViolation() {
	if m == nil {
		return
	}
	m.toolLoops.Inc()
}

func (m *Metrics) IncStreamEvent(kind string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(orUnknown(kind)).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamConsumers.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamConsumers.Dec()
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.WithLabelValues(orUnknown(provider), orUnknown(operation), orUnknown(status)).Inc()
	m.vectorLatency.WithLabelValues(orUnknown(provider), orUnknown(operation)).Observe(dur.Seconds())
}
