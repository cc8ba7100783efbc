package observability

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics("webpilot_test")

	m.RecordRun("completed")
	m.RecordRun("completed")
	m.RecordRun("failed_step_limit")
	m.RecordStep()
	m.RecordAction("click", true)
	m.RecordAction("click", false)
	m.RecordAction("click", false)
	m.RecordPlannerRequest("ok", 120*time.Millisecond)
	m.RecordPlannerRequest("error", time.Second)
	m.RecordFallback("no_json_object")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed_step_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("click", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("click", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.plannerRequests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbackPlans.WithLabelValues("no_json_object")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.plannerDuration))
}

func TestMetricsIsolatedRegistries(t *testing.T) {
	// Two instances with the same namespace must not collide.
	a := NewMetrics("webpilot")
	b := NewMetrics("webpilot")

	a.RecordStep()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.stepsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.stepsTotal))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("stopped")
		m.RecordStep()
		m.RecordAction("wait", true)
		m.RecordPlannerRequest("ok", time.Millisecond)
		m.RecordFallback("planner_error")
	})
	assert.Nil(t, m.Registry())
	assert.Error(t, ServeMetrics(context.Background(), ":0", m, zap.NewNop()))
}

func TestServeMetrics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := NewMetrics("webpilot_serve")
	m.RecordStep()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(ctx, addr, m, zap.NewNop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, "webpilot_serve_steps_total 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}
