package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the service's Prometheus collectors.
type MetricsManager struct {
	Registry *prometheus.Registry

	MutationsTotal     *prometheus.CounterVec
	RemoteWritesTotal  *prometheus.CounterVec
	RemoteWriteLatency prometheus.Histogram
	ReconcilesTotal    *prometheus.CounterVec
	SavedItems         prometheus.Gauge
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
}

func NewMetricsManager(namespace string) *MetricsManager {
	registry := prometheus.NewRegistry()

	m := &MetricsManager{
		Registry: registry,
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_mutations_total",
			Help:      "Mutations accepted by the saved-properties store, by action.",
		}, []string{"action"}),
		RemoteWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_remote_writes_total",
			Help:      "Writes of the saved list to the metadata store, by outcome.",
		}, []string{"outcome"}),
		RemoteWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "saved_remote_write_latency_seconds",
			Help:      "Latency of saved list writes.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReconcilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_reconciles_total",
			Help:      "Restores after a failed write, by source of the restored list.",
		}, []string{"source"}),
		SavedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "saved_items",
			Help:      "Number of properties in the last published snapshot.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "Latency of HTTP requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	registry.MustRegister(
		m.MutationsTotal,
		m.RemoteWritesTotal,
		m.RemoteWriteLatency,
		m.ReconcilesTotal,
		m.SavedItems,
		m.HTTPRequestsTotal,
		m.HTTPLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *MetricsManager) MutationAccepted(action string) {
	m.MutationsTotal.WithLabelValues(action).Inc()
}

func (m *MetricsManager) RemoteWrite(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = service.ClassifyError(err)
	}
	m.RemoteWritesTotal.WithLabelValues(outcome).Inc()
	m.RemoteWriteLatency.Observe(d.Seconds())
}

func (m *MetricsManager) Reconciled(fromRemote bool) {
	source := "memory"
	if fromRemote {
		source = "remote"
	}
	m.ReconcilesTotal.WithLabelValues(source).Inc()
}

func (m *MetricsManager) SavedCount(n int) {
	m.SavedItems.Set(float64(n))
}

func (m *MetricsManager) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// Server exposes the registry on /metrics.
type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(port string, registry *prometheus.Registry, log logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Run serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.log.Infow("Prometheus metrics server starting", "addr", s.srv.Addr, "path", "/metrics")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
