// Package metrics exposes the daemon's counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/pkg/types"
)

const namespace = "pcmatrix"

// Handle records daemon activity. All methods are safe for concurrent use.
type Handle struct {
	registry *prometheus.Registry

	produced *prometheus.CounterVec
	skipped  prometheus.Counter
	results  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the daemon collectors on a fresh registry.
func New() *Handle {
	h := &Handle{
		registry: prometheus.NewRegistry(),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Tasks put on the queue, by kind.",
		}, []string{"kind"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "descriptors_skipped_total",
			Help:      "Descriptors that could not be read or parsed.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_results_total",
			Help:      "Results delivered to the sink, by kind and status.",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Execution time of a task.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
	}
	h.registry.MustRegister(h.produced, h.skipped, h.results, h.latency)
	return h
}

// WatchQueue exports the occupancy and capacity reported by the given funcs.
func (h *Handle) WatchQueue(length, capacity func() int) {
	h.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Tasks currently waiting in the bounded queue.",
		}, func() float64 { return float64(length()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Fixed capacity of the bounded queue.",
		}, func() float64 { return float64(capacity()) }),
	)
}

// WatchBacklog exports the number of tasks enqueued but not yet reported.
func (h *Handle) WatchBacklog(load func() int64) {
	h.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backlog",
		Help:      "Tasks enqueued whose result has not reached the sink.",
	}, func() float64 { return float64(load()) }))
}

func (h *Handle) Enqueued(kind types.Kind) {
	h.produced.WithLabelValues(kindLabel(kind)).Inc()
}

func (h *Handle) Skipped() {
	h.skipped.Inc()
}

// Completed records one result.
func (h *Handle) Completed(r types.Result) {
	status := "ok"
	if !r.OK() {
		status = "failed"
	}
	h.results.WithLabelValues(kindLabel(r.Kind), status).Inc()
	h.latency.WithLabelValues(kindLabel(r.Kind)).Observe(r.Duration.Seconds())
}

// kindLabel folds kinds with no handler into one label value. Kinds come
// from descriptor files, so they cannot be used as labels unchecked.
func kindLabel(kind types.Kind) string {
	switch kind {
	case types.KindGenerate, types.KindSum, types.KindAverage, types.KindDisplay:
		return string(kind)
	default:
		return "unknown"
	}
}

// Registry is exposed for scraping in tests.
func (h *Handle) Registry() *prometheus.Registry {
	return h.registry
}

// Serve exposes /metrics on port until ctx is done.
func (h *Handle) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logger.Infof("serving prometheus metrics on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
