// Package metrics provides Prometheus instrumentation for the virtual
// filesystem.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskfs/internal/logging"
)

var logger = logging.GetLogger().WithPrefix("metrics")

// Metrics holds the filesystem instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Operations       *prometheus.CounterVec
	Errors           *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	IndexEntries     prometheus.Gauge
	ContentBytes     *prometheus.CounterVec
	IndexWrites      prometheus.Counter
	IndexWriteErrors prometheus.Counter
}

// New creates and registers the filesystem metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskfs",
			Subsystem: "fs",
			Name:      "operations_total",
			Help:      "Filesystem operations by name.",
		}, []string{"op"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskfs",
			Subsystem: "fs",
			Name:      "errors_total",
			Help:      "Failed filesystem operations by name and error kind.",
		}, []string{"op", "kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskfs",
			Subsystem: "fs",
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations including persistence.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskfs",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of entries in the live index, root included.",
		}),
		ContentBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskfs",
			Subsystem: "content",
			Name:      "bytes_total",
			Help:      "Content bytes read and written.",
		}, []string{"direction"}),
		IndexWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskfs",
			Subsystem: "index",
			Name:      "writes_total",
			Help:      "Full index rewrites persisted to the store.",
		}),
		IndexWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskfs",
			Subsystem: "index",
			Name:      "write_errors_total",
			Help:      "Index rewrites the store rejected.",
		}),
	}

	reg.MustRegister(
		m.Operations,
		m.Errors,
		m.Duration,
		m.IndexEntries,
		m.ContentBytes,
		m.IndexWrites,
		m.IndexWriteErrors,
	)

	return m
}

// Observe records one finished operation. kind is empty on success.
func (m *Metrics) Observe(op, kind string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if kind != "" {
		m.Errors.WithLabelValues(op, kind).Inc()
	}
}

// SetEntries updates the index size gauge.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.IndexEntries.Set(float64(n))
}

// AddContent counts content bytes in the given direction ("read" or "write").
func (m *Metrics) AddContent(direction string, n int) {
	if m == nil {
		return
	}
	m.ContentBytes.WithLabelValues(direction).Add(float64(n))
}

// IndexWritten counts one attempted index rewrite.
func (m *Metrics) IndexWritten(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexWriteErrors.Inc()
		return
	}
	m.IndexWrites.Inc()
}

// Serve exposes /metrics for gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}()

	logger.Info("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
