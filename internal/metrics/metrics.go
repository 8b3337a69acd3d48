package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer's Prometheus collectors.
type Metrics struct {
	passes     *prometheus.CounterVec
	events     *prometheus.CounterVec
	liveEvents *prometheus.CounterVec
	watermark  *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			passes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vaultscope_passes_total",
				Help: "Reconciliation passes by outcome",
			}, []string{"outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vaultscope_events_total",
				Help: "Logs processed by reconciliation passes, by result",
			}, []string{"result"}),
			liveEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vaultscope_live_events_total",
				Help: "Logs delivered by live subscriptions, by event",
			}, []string{"event"}),
			watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vaultscope_watermark_block",
				Help: "Last fully applied block per vault",
			}, []string{"vault"}),
		}
		prometheus.MustRegister(
			metrics.passes,
			metrics.events,
			metrics.liveEvents,
			metrics.watermark,
		)
	})
	return metrics
}

// PassCompleted counts a finished pass.
func (m *Metrics) PassCompleted(outcome string) {
	if m != nil {
		m.passes.WithLabelValues(outcome).Inc()
	}
}

// EventProcessed counts one per-event result of a pass.
func (m *Metrics) EventProcessed(result string) {
	if m != nil {
		m.events.WithLabelValues(result).Inc()
	}
}

// LiveEvent counts one log handled by the live driver.
func (m *Metrics) LiveEvent(event string) {
	if m != nil {
		m.liveEvents.WithLabelValues(event).Inc()
	}
}

// Watermark records a vault's persisted watermark.
func (m *Metrics) Watermark(vault string, block uint64) {
	if m != nil {
		m.watermark.WithLabelValues(vault).Set(float64(block))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
