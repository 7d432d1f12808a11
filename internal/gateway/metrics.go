package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Request outcomes recorded by Metrics.
const (
	outcomeOK          = "ok"
	outcomeViolation   = "violation"
	outcomeBadRequest  = "bad_request"
	outcomeRateLimited = "rate_limited"
	outcomeUpstream    = "upstream_error"
	outcomeAborted     = "aborted"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inovy",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Generate requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inovy",
			Subsystem: "gateway",
			Name:      "tokens_total",
			Help:      "Upstream tokens consumed by kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inovy",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Time to complete a generate request.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.requests, m.tokens, m.latency)
	return m
}

func (m *Metrics) observe(endpoint, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) addUsage(u provider.TokenUsage) {
	if u.PromptTokens > 0 {
		m.tokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		m.tokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	}
}
