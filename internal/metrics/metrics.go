package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "ranktracker"

// Metrics groups the collectors exported by the tracker. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	searchRequests *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	pagesScanned   prometheus.Counter
	alerts         *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	lastBatch      prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search API requests by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Rank resolutions by result.",
		}, []string{"result"}),
		pagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_scanned_total",
			Help:      "Result pages walked by the resolver.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert proposals raised by kind.",
		}, []string{"kind"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dispatches_total",
			Help:      "Notification dispatches by outcome.",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of a full batch.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time of the last completed batch.",
		}),
	}
	m.registry.MustRegister(
		m.searchRequests,
		m.resolutions,
		m.pagesScanned,
		m.alerts,
		m.dispatches,
		m.batchDuration,
		m.lastBatch,
	)
	return m
}

// ObserveSearchRequest counts one outbound search call.
func (m *Metrics) ObserveSearchRequest(outcome string) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(outcome).Inc()
}

// ObserveResolution records a finished resolution.
func (m *Metrics) ObserveResolution(found bool, pages int) {
	if m == nil {
		return
	}
	result := "not_found"
	if found {
		result = "found"
	}
	m.resolutions.WithLabelValues(result).Inc()
	m.pagesScanned.Add(float64(pages))
}

// ObserveAlert counts an alert proposal.
func (m *Metrics) ObserveAlert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// ObserveDispatch counts a notifier call.
func (m *Metrics) ObserveDispatch(ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// ObserveBatch records a completed batch.
func (m *Metrics) ObserveBatch(started, finished time.Time) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(finished.Sub(started).Seconds())
	m.lastBatch.Set(float64(finished.Unix()))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
