// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the agent's collectors on a private registry. A nil *Metrics
// is valid and records nothing, so components never need to check.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	stepsTotal      prometheus.Counter
	actionsTotal    *prometheus.CounterVec
	plannerRequests *prometheus.CounterVec
	plannerDuration prometheus.Histogram
	fallbackPlans   *prometheus.CounterVec
}

// NewMetrics registers every collector under namespace on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished agent runs by terminal state.",
		}, []string{"state"}),
		stepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Control loop steps executed.",
		}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched browser actions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		plannerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_requests_total",
			Help:      "Planner invocations by outcome.",
		}, []string{"outcome"}),
		plannerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "planner_request_duration_seconds",
			Help:      "Planner round trip latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		fallbackPlans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_plans_total",
			Help:      "Planner responses replaced by the fallback plan, by reason.",
		}, []string{"reason"}),
	}
}

// Registry exposes the underlying registry for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRun(state string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordStep() {
	if m == nil {
		return
	}
	m.stepsTotal.Inc()
}

func (m *Metrics) RecordAction(kind string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.actionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordPlannerRequest observes one planner call. outcome is "ok" or "error".
func (m *Metrics) RecordPlannerRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.plannerRequests.WithLabelValues(outcome).Inc()
	m.plannerDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbackPlans.WithLabelValues(reason).Inc()
}

// ServeMetrics exposes the registry on addr under /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *Metrics, logger *zap.Logger) error {
	if m == nil {
		return errors.New("metrics are not initialized")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening.", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
