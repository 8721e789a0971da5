package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// SubmissionMetrics turns the progress stream of a batch run into
// prometheus series.
type SubmissionMetrics struct {
	registry *prometheus.Registry
	service  string

	itemsTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsInFlight prometheus.Gauge
	runProgress  prometheus.Gauge

	mu        sync.Mutex
	startedAt time.Time
	now       func() time.Time
}

func NewSubmissionMetrics(service string) *SubmissionMetrics {
	registry := prometheus.NewRegistry()

	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tombamento",
			Subsystem: "submission",
			Name:      "items_total",
			Help:      "Total attempted identifiers by status.",
		},
		[]string{"service", "status"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tombamento",
			Subsystem: "submission",
			Name:      "runs_total",
			Help:      "Total finished runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tombamento",
			Subsystem: "submission",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished runs by outcome.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tombamento",
			Subsystem:   "submission",
			Name:        "runs_in_flight",
			Help:        "Number of runs currently submitting.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	runProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "tombamento",
			Subsystem:   "submission",
			Name:        "run_progress_ratio",
			Help:        "Fraction of the current run already attempted.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(itemsTotal, runsTotal, runDuration, runsInFlight, runProgress)

	return &SubmissionMetrics{
		registry:     registry,
		service:      service,
		itemsTotal:   itemsTotal,
		runsTotal:    runsTotal,
		runDuration:  runDuration,
		runsInFlight: runsInFlight,
		runProgress:  runProgress,
		now:          time.Now,
	}
}

func (m *SubmissionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SubmissionMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *SubmissionMetrics) ObserveEvent(event domain.ProgressEvent) {
	switch event.Kind {
	case domain.EventStarted:
		m.mu.Lock()
		m.startedAt = m.now()
		m.mu.Unlock()
		m.runsInFlight.Inc()
		m.runProgress.Set(0)
	case domain.EventItemAttempted:
		status := domain.ItemSuccess
		if !event.Success {
			status = domain.ItemFailure
		}
		m.itemsTotal.WithLabelValues(m.service, string(status)).Inc()
		m.runProgress.Set(event.Progress)
	case domain.EventCompleted:
		m.finish("completed", event.Elapsed)
	case domain.EventFailed:
		outcome := "failed"
		if event.Reason == domain.ReasonCancelled {
			outcome = "cancelled"
		}
		m.finish(outcome, 0)
	}
}

func (m *SubmissionMetrics) finish(outcome string, elapsed time.Duration) {
	m.mu.Lock()
	started := m.startedAt
	m.startedAt = time.Time{}
	m.mu.Unlock()

	if started.IsZero() {
		// failures before the started event never entered the in-flight gauge
		m.runsTotal.WithLabelValues(m.service, outcome).Inc()
		return
	}
	if elapsed <= 0 {
		elapsed = m.now().Sub(started)
	}
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(m.service, outcome).Inc()
	m.runDuration.WithLabelValues(m.service, outcome).Observe(elapsed.Seconds())
}

// Handler serves several registries on one endpoint.
func Handler(gatherers ...prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers(gatherers), promhttp.HandlerOpts{})
}
