package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serverwentdown/notion2ics"
)

// Metrics records cycle reports as Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server

	cycles           *prometheus.CounterVec
	records          *prometheus.CounterVec
	relationFailures *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	lastSuccessTS    *prometheus.GaugeVec
	events           *prometheus.GaugeVec
}

// New registers the metrics on a fresh registry and prepares an HTTP server
// on addr serving /metrics and /healthz.
func New(addr string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notion2ics",
		Name:      "cycles_total",
		Help:      "Number of database syncs by status",
	}, []string{"database", "status"})
	m.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notion2ics",
		Name:      "records_total",
		Help:      "Number of records processed by outcome",
	}, []string{"database", "outcome"})
	m.relationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notion2ics",
		Name:      "relation_failures_total",
		Help:      "Number of related records that could not be fetched",
	}, []string{"database"})
	m.cycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notion2ics",
		Name:      "sync_duration_seconds",
		Help:      "Time spent syncing one database",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"database"})
	m.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "notion2ics",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful sync",
	}, []string{"database"})
	m.events = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "notion2ics",
		Name:      "calendar_events",
		Help:      "Number of events in the last written calendar",
	}, []string{"database"})

	m.registry.MustRegister(
		m.cycles, m.records, m.relationFailures,
		m.cycleDuration, m.lastSuccessTS, m.events,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	m.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return m
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	return m.server.Handler
}

func (m *Metrics) Serve() error {
	return m.server.ListenAndServe()
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

// Report implements notion2ics.Reporter.
func (m *Metrics) Report(ctx context.Context, report notion2ics.CycleReport) {
	db := report.DatabaseID

	m.cycleDuration.WithLabelValues(db).Observe(report.Finished.Sub(report.Started).Seconds())
	m.records.WithLabelValues(db, "event").Add(float64(report.Events))
	m.records.WithLabelValues(db, "dropped").Add(float64(report.Dropped))
	m.relationFailures.WithLabelValues(db).Add(float64(report.RelationFailures))

	if report.Err != nil {
		m.cycles.WithLabelValues(db, "error").Inc()
		return
	}
	m.cycles.WithLabelValues(db, "ok").Inc()
	m.events.WithLabelValues(db).Set(float64(report.Events))
	m.lastSuccessTS.WithLabelValues(db).Set(float64(report.Finished.Unix()))
}
