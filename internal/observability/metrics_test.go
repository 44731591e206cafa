package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics("test", prometheus.NewRegistry())

	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.APIRequestsTotal)
	assert.NotNil(t, metrics.APIRequestDuration)
	assert.NotNil(t, metrics.PollsTotal)
	assert.NotNil(t, metrics.TrackedDeployments)
	assert.NotNil(t, metrics.OperationsTotal)
	assert.NotNil(t, metrics.BuildsTotal)
}

func TestMetrics_RecordAPIRequest(t *testing.T) {
	metrics := NewMetrics("test_api", prometheus.NewRegistry())

	metrics.RecordAPIRequest("deploy", "ok", 120*time.Millisecond)
	metrics.RecordAPIRequest("deploy", "ok", 80*time.Millisecond)
	metrics.RecordAPIRequest("deploy", "unauthorized", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("deploy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("deploy", "unauthorized")))
}

func TestMetrics_Polls(t *testing.T) {
	metrics := NewMetrics("test_polls", prometheus.NewRegistry())

	metrics.RecordPoll("ok")
	metrics.RecordPoll("skipped")
	metrics.RecordPoll("skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PollsTotal.WithLabelValues("skipped")))
}

func TestMetrics_TrackedDeployments(t *testing.T) {
	metrics := NewMetrics("test_tracked", prometheus.NewRegistry())

	metrics.SetTrackedDeployments(map[string]int{"completed": 3, "failed": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TrackedDeployments.WithLabelValues("completed")))

	metrics.SetTrackedDeployments(map[string]int{"in_progress": 1})
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.TrackedDeployments), "reset drops stale states")
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics

	// Should not panic
	metrics.RecordAPIRequest("status", "ok", time.Second)
	metrics.RecordPoll("ok")
	metrics.SetTrackedDeployments(map[string]int{"pending": 1})
	metrics.RecordOperation("deploy", "ok")
	metrics.RecordRetry("status")
	metrics.RecordBuild("success", time.Minute)
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics("test_handler", prometheus.NewRegistry())
	metrics.RecordOperation("deploy", "ok")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_handler_operations_total{operation="deploy",result="ok"} 1`)
}
