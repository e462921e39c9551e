package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/studykit-backend/internal/platform/envutil"
	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	generations       *CounterVec
	generationLatency *HistogramVec

	ingestedSources *CounterVec

	vectorOps       *CounterVec
	vectorOpLatency *HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide collector, or nil when metrics are off.
// Every Metrics method is safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("sk_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"sk_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		apiInflight: NewGauge("sk_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("sk_llm_requests_total", "LLM requests by provider/model/status.", []string{"provider", "model", "status"}),
		llmLatency: NewHistogramVec(
			"sk_llm_request_duration_seconds",
			"LLM request latency in seconds by provider/model/status.",
			[]string{"provider", "model", "status"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens:   NewCounterVec("sk_llm_tokens_total", "LLM tokens by provider/model/direction.", []string{"provider", "model", "direction"}),
		generations: NewCounterVec("sk_generation_total", "Generation calls by task/outcome.", []string{"task", "outcome"}),
		generationLatency: NewHistogramVec(
			"sk_generation_duration_seconds",
			"End-to-end generation latency by task/outcome.",
			[]string{"task", "outcome"},
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		),
		ingestedSources: NewCounterVec("sk_ingestion_sources_total", "Ingested sources by status.", []string{"status"}),
		vectorOps:       NewCounterVec("sk_vector_store_operations_total", "Vector store calls by provider/operation/status.", []string{"provider", "operation", "status"}),
		vectorOpLatency: NewHistogramVec(
			"sk_vector_store_operation_duration_seconds",
			"Vector store call latency by provider/operation/status.",
			[]string{"provider", "operation", "status"},
			[]float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.generations, m.generationLatency,
		m.ingestedSources,
		m.vectorOps, m.vectorOpLatency,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(provider, model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), provider, model, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), provider, model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), provider, model, "output")
	}
}

func (m *Metrics) ObserveGeneration(task, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.generations.Inc(task, outcome)
	m.generationLatency.Observe(dur.Seconds(), task, outcome)
}

func (m *Metrics) IncIngestedSource(status string) {
	if m == nil {
		return
	}
	m.ingestedSources.Inc(status)
}

func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(provider, operation, status)
	m.vectorOpLatency.Observe(dur.Seconds(), provider, operation, status)
}

func (m *Metrics) VectorStoreOperationCount(provider, operation, status string) float64 {
	if m == nil {
		return 0
	}
	return m.vectorOps.Value(provider, operation, status)
}

func (m *Metrics) GenerationCount(task, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.generations.Value(task, outcome)
}

// StatusLabel turns an upstream response/error pair into a low-cardinality label.
func StatusLabel(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var sc httpx.HTTPStatusCoder
	if err != nil && errors.As(err, &sc) {
		return strconv.Itoa(sc.HTTPStatusCode())
	}
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
