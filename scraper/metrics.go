package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a watch run.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	PageDuration       prometheus.Histogram
	RecordsTotal       prometheus.Counter
	RecordsSkipped     *prometheus.CounterVec
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	SitesTotal         *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_pages_total",
			Help: "Total page extractions by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockwatch_page_duration_seconds",
			Help:    "Latency of single page extraction attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockwatch_records_total",
			Help: "Total product records accepted into observations.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_records_skipped_total",
			Help: "Product records dropped before reconciliation by reason.",
		},
		[]string{"reason"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockwatch_retries_total",
			Help: "Total number of page retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_errors_total",
			Help: "Total number of task errors by type.",
		},
		[]string{"error_type"},
	)
	sites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_sites_total",
			Help: "Site runs by outcome.",
		},
		[]string{"outcome"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_transitions_total",
			Help: "Reconciled product transitions by kind.",
		},
		[]string{"kind"},
	)
	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_notifications_total",
			Help: "Notification deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(pages, pageDuration, records, skipped, retries, errorsTotal, sites, transitions, notifications)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		PageDuration:       pageDuration,
		RecordsTotal:       records,
		RecordsSkipped:     skipped,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		SitesTotal:         sites,
		TransitionsTotal:   transitions,
		NotificationsTotal: notifications,
	}
}

// IncPage increments the page counter for an outcome.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a page extraction duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

// IncRecords increments the accepted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncSkipped increments the skipped records counter for a reason.
func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncSite increments the site counter for an outcome.
func (m *Metrics) IncSite(outcome string) {
	if m == nil {
		return
	}
	m.SitesTotal.WithLabelValues(outcome).Inc()
}

// AddTransitions adds n to the transitions counter for a kind.
func (m *Metrics) AddTransitions(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind).Add(float64(n))
}

// IncNotification increments the notifications counter for an outcome.
func (m *Metrics) IncNotification(outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}
