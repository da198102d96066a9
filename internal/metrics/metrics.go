package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amaumene/debridstrm/internal/controllers"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debridstrm"

// Metrics holds the Prometheus collectors for API traffic and cycles.
// It satisfies realdebrid.Observer and controllers.CycleRecorder.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	OutcomeAttempts prometheus.Histogram

	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	LastCycleTime      prometheus.Gauge
	Torrents           prometheus.Gauge
	RetryQueueLength   prometheus.Gauge
	PointersCreated    prometheus.Counter
	PointersExpired    prometheus.Counter
	OrphansRemoved     prometheus.Counter
	FilesFilteredTotal *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Time spent on Real-Debrid API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of Real-Debrid API requests by endpoint and status code",
		}, []string{"endpoint", "status"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Total number of retried Real-Debrid API requests",
		}, []string{"endpoint", "status"}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrestrict_outcomes_total",
			Help:      "Total number of link resolutions by outcome",
		}, []string{"outcome"}),
		OutcomeAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unrestrict_attempts",
			Help:      "Attempts needed per link resolution",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of cycles by result",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent per cycle",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LastCycleTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle started",
		}),
		Torrents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "torrents",
			Help:      "Torrents seen in the account during the last cycle",
		}),
		RetryQueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_length",
			Help:      "Links deferred to the next cycle",
		}),
		PointersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pointers_written_total",
			Help:      "Total number of pointer files created or rewritten",
		}),
		PointersExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pointers_expired_total",
			Help:      "Total number of pointer files found past their expiry window",
		}),
		OrphansRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_removed_total",
			Help:      "Total number of orphaned pointer files removed",
		}),
		FilesFilteredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_filtered_total",
			Help:      "Total number of resolved files rejected by reason",
		}, []string{"reason"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(endpoint string, status int, duration time.Duration) {
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	m.RequestsTotal.WithLabelValues(endpoint, statusLabel(status)).Inc()
}

func (m *Metrics) ObserveRetry(endpoint string, status int) {
	m.RetriesTotal.WithLabelValues(endpoint, statusLabel(status)).Inc()
}

func (m *Metrics) ObserveOutcome(kind models.LinkStatus, attempts int) {
	m.OutcomesTotal.WithLabelValues(string(kind)).Inc()
	m.OutcomeAttempts.Observe(float64(attempts))
}

// ObserveCycle records a finished cycle
func (m *Metrics) ObserveCycle(summary *controllers.CycleSummary, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	if summary == nil {
		return
	}

	m.CycleDuration.Observe(summary.DurationSeconds)
	m.LastCycleTime.Set(float64(summary.StartedAt.Unix()))
	if err != nil {
		return
	}

	m.Torrents.Set(float64(summary.Torrents))
	m.RetryQueueLength.Set(float64(summary.RetryQueue))
	m.PointersCreated.Add(float64(summary.Reconcile.Created))
	m.PointersExpired.Add(float64(summary.ExpiredPointers))
	m.OrphansRemoved.Add(float64(summary.OrphansRemoved))
	m.FilesFilteredTotal.WithLabelValues("video_small").Add(float64(summary.Reconcile.FilteredVideoSmall))
	m.FilesFilteredTotal.WithLabelValues("other").Add(float64(summary.Reconcile.FilteredOther))
	m.FilesFilteredTotal.WithLabelValues("no_filename").Add(float64(summary.Reconcile.FilteredNoFilename))
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
