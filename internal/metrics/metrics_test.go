package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordExec(t *testing.T) {
	m := New()

	m.RecordExec("req-1", "echo hi", "completed", 0, 12*time.Millisecond)
	m.RecordExec("req-2", "rm -rf /", "blocked", -1, time.Millisecond)
	m.RecordExec("req-3", "echo bye", "completed", 0, 8*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ExecTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExecTotal.WithLabelValues("blocked")))
}

func TestObserveDispatch(t *testing.T) {
	m := New()

	m.ObserveDispatch("system", "ok", 20*time.Millisecond)
	m.ObserveDispatch("system", "Timeout", 2*time.Second)
	m.ObserveDispatch("filesystem", "ok", 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues("system", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues("system", "Timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues("filesystem", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordPlan("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plans_total")
}
