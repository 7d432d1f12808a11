package pool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Stats is a point-in-time view of one provider's pool.
type Stats struct {
	Provider    provider.Name `json:"provider"`
	Total       int           `json:"total"`
	Healthy     int           `json:"healthy"`
	Active      int64         `json:"active"`
	Utilization float64       `json:"utilization"`
}

// Stats returns the current figures for one provider. Utilization is
// active requests over pool size times per-client concurrency, as a
// percentage clamped to [0, 100].
func (p *Pool) Stats(name provider.Name) Stats {
	s := Stats{Provider: name}
	g := p.groups[name]
	if g == nil {
		return s
	}

	s.Total = len(g.clients)
	for _, c := range g.clients {
		if c.Healthy() {
			s.Healthy++
		}
		s.Active += c.ActiveRequests()
	}

	capacity := float64(s.Total * p.cfg.PerClientConcurrency)
	if capacity > 0 {
		s.Utilization = min(max(float64(s.Active)/capacity*100, 0), 100)
	}
	return s
}

// AllStats returns Stats for every configured provider, sorted by name.
func (p *Pool) AllStats() []Stats {
	names := p.Providers()
	out := make([]Stats, 0, len(names))
	for _, n := range names {
		out = append(out, p.Stats(n))
	}
	return out
}

// Degraded reports whether any configured provider has clients but
// none of them healthy.
func (p *Pool) Degraded() bool {
	for _, s := range p.AllStats() {
		if s.Total > 0 && s.Healthy == 0 {
			return true
		}
	}
	return false
}

var (
	descTotal = prometheus.NewDesc(
		"inovy_pool_clients_total",
		"Number of pooled clients per provider.",
		[]string{"provider"}, nil,
	)
	descHealthy = prometheus.NewDesc(
		"inovy_pool_clients_healthy",
		"Number of healthy pooled clients per provider.",
		[]string{"provider"}, nil,
	)
	descActive = prometheus.NewDesc(
		"inovy_pool_active_requests",
		"In-flight requests across a provider's pooled clients.",
		[]string{"provider"}, nil,
	)
	descUtilization = prometheus.NewDesc(
		"inovy_pool_utilization_percent",
		"Active requests relative to assumed pool capacity.",
		[]string{"provider"}, nil,
	)
	descRetries = prometheus.NewDesc(
		"inovy_pool_retries_total",
		"Retries performed after transient upstream failures.",
		[]string{"provider"}, nil,
	)
	descExhausted = prometheus.NewDesc(
		"inovy_pool_retries_exhausted_total",
		"Calls that failed every retry attempt.",
		[]string{"provider"}, nil,
	)
)

// Collector exposes pool figures to Prometheus. Values are read at
// scrape time, so no background updater is needed.
func (p *Pool) Collector() prometheus.Collector {
	return poolCollector{p: p}
}

type poolCollector struct {
	p *Pool
}

func (c poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descTotal
	ch <- descHealthy
	ch <- descActive
	ch <- descUtilization
	ch <- descRetries
	ch <- descExhausted
}

func (c poolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.p.AllStats() {
		label := string(s.Provider)
		g := c.p.groups[s.Provider]
		ch <- prometheus.MustNewConstMetric(descTotal, prometheus.GaugeValue, float64(s.Total), label)
		ch <- prometheus.MustNewConstMetric(descHealthy, prometheus.GaugeValue, float64(s.Healthy), label)
		ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(s.Active), label)
		ch <- prometheus.MustNewConstMetric(descUtilization, prometheus.GaugeValue, s.Utilization, label)
		ch <- prometheus.MustNewConstMetric(descRetries, prometheus.CounterValue, float64(g.retries.Load()), label)
		ch <- prometheus.MustNewConstMetric(descExhausted, prometheus.CounterValue, float64(g.exhausted.Load()), label)
	}
}
