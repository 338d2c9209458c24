package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace           = "triagem"
	readHeaderTimeout   = 5 * time.Second
	serverShutdownGrace = 5 * time.Second
)

// Metrics counts which path served each inference. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	inferences   *prometheus.CounterVec
	backendReady *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_total",
			Help:      "Summaries and classifications by engine and producing source.",
		}, []string{"engine", "source"}),
		backendReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_ready",
			Help:      "1 when the engine model backend is loaded, 0 when it is on fallback.",
		}, []string{"engine"}),
	}

	registry.MustRegister(m.inferences, m.backendReady)

	return m
}

func (m *Metrics) ObserveInference(engine string, source string) {
	if m == nil {
		return
	}

	m.inferences.WithLabelValues(engine, source).Inc()
}

func (m *Metrics) SetBackendReady(engine string, ready bool) {
	if m == nil {
		return
	}

	value := 0.0
	if ready {
		value = 1
	}

	m.backendReady.WithLabelValues(engine).Set(value)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(shutdownCtx, "Failed to shutdown metrics server",
				"error", err,
				"addr", addr)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
