package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/easydeploy/internal/apitest"
	"github.com/alvesdmateus/easydeploy/internal/descriptor"
	"github.com/alvesdmateus/easydeploy/internal/observability"
	"github.com/alvesdmateus/easydeploy/internal/status"
)

const testKey = "sk-test-123"

func setupClient(t *testing.T, opts ...Option) (*Client, *apitest.ControlPlane) {
	t.Helper()
	cp := apitest.New(testKey)
	base := cp.Start(t)
	client, err := New(base, testKey, opts...)
	require.NoError(t, err)
	return client, cp
}

// rawServer serves a fixed response for every request.
func rawServer(t *testing.T, code int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, testKey)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New("", "")
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, c.BaseURL())
		assert.Equal(t, DefaultTimeout, c.timeout)
		assert.Equal(t, DefaultHealthTimeout, c.healthTimeout)
	})

	t.Run("normalizes base url", func(t *testing.T) {
		c, err := New("api.example.com/api/v1/", "k")
		require.NoError(t, err)
		assert.Equal(t, "http://api.example.com/api/v1", c.BaseURL())
	})

	t.Run("options", func(t *testing.T) {
		c, err := New("https://x", "k", WithTimeout(time.Second), WithHealthTimeout(2*time.Second), WithRateLimit(5, 0))
		require.NoError(t, err)
		assert.Equal(t, time.Second, c.timeout)
		assert.Equal(t, 2*time.Second, c.healthTimeout)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})
}

func TestClient_SendsHeaders(t *testing.T) {
	client, cp := setupClient(t)

	_, err := client.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)

	reqs := cp.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+testKey, reqs[0].Authorization)
	assert.NotEmpty(t, reqs[0].RequestID)
}

func TestClient_Deploy(t *testing.T) {
	client, cp := setupClient(t)

	d := descriptor.Default("demo")
	d.Env = descriptor.EnvVars{{Key: "B", Value: "2"}, {Key: "A", Value: "1"}}

	res, err := client.Deploy(context.Background(), d.DeployRequest(""))
	require.NoError(t, err)
	require.NotEmpty(t, res.DeploymentID)

	stored, ok := cp.Deployment(res.DeploymentID)
	require.True(t, ok)
	assert.Equal(t, "demo", stored.Name)

	reqs := cp.Requests()
	require.Len(t, reqs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, "docker", body["type"])
	assert.Equal(t, "aws", body["platform"])
	assert.Equal(t, map[string]any{"B": "2", "A": "1"}, body["env_vars"])
}

func TestClient_Deploy_IDVariants(t *testing.T) {
	for _, body := range []string{`{"id":"d1"}`, `{"job_id":"d1"}`, `{"deployment_id":"d1"}`} {
		client := rawServer(t, http.StatusOK, body)
		res, err := client.Deploy(context.Background(), descriptor.Default("demo").DeployRequest(""))
		require.NoError(t, err, body)
		assert.Equal(t, "d1", res.DeploymentID)
	}
}

func TestClient_Deploy_MissingID(t *testing.T) {
	client := rawServer(t, http.StatusOK, `{"status":"queued"}`)

	_, err := client.Deploy(context.Background(), descriptor.Default("demo").DeployRequest(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestClient_ListDeployments_Shapes(t *testing.T) {
	wrapped := rawServer(t, http.StatusOK, `{"deployments":[{"id":"a"}]}`)
	bare := rawServer(t, http.StatusOK, `[{"id":"a"}]`)

	fromWrapped, err := wrapped.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)
	fromBare, err := bare.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)

	assert.Equal(t, fromWrapped, fromBare)
	require.Len(t, fromBare, 1)
	assert.Equal(t, "a", fromBare[0].ID)
	assert.Equal(t, status.InProgress, fromBare[0].State)
}

func TestClient_ListDeployments_UnknownShapeIsEmpty(t *testing.T) {
	for _, body := range []string{`{"items":[{"id":"a"}]}`, `"nope"`, `{"deployments":"x"}`, `42`, ``, `OK`, `<html>gateway</html>`} {
		client := rawServer(t, http.StatusOK, body)
		got, err := client.ListDeployments(context.Background(), ListFilter{})
		require.NoError(t, err, body)
		assert.Empty(t, got, body)
		assert.NotNil(t, got)
	}
}

func TestClient_ListDeployments_FieldVariants(t *testing.T) {
	client := rawServer(t, http.StatusOK, `{"deployments":[
		{"job_id":"j1","app_name":"legacy","status":"success","url":"https://x","created_at":"2024-01-02T03:04:05.123456"},
		{"id":7,"name":"numeric","status":"ERROR","url":null},
		{"name":"no-id"},
		"garbage"
	]}`)

	got, err := client.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "j1", got[0].ID)
	assert.Equal(t, "legacy", got[0].Name)
	assert.Equal(t, status.Completed, got[0].State)
	assert.Equal(t, "success", got[0].RawStatus)
	require.NotNil(t, got[0].CreatedAt)

	assert.Equal(t, "7", got[1].ID)
	assert.Equal(t, status.Failed, got[1].State)
	assert.Empty(t, got[1].URL)
}

func TestClient_ListDeployments_Filter(t *testing.T) {
	client, cp := setupClient(t)
	cp.AddDeployment("other", "completed")
	cp.AddDeployment("demo", "running")
	cp.AddDeployment("demo", "completed")

	got, err := client.ListDeployments(context.Background(), ListFilter{AppName: "demo", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "demo", got[0].Name)
	assert.Equal(t, status.Completed, got[0].State)

	cp.SetListShape(apitest.BareList)
	got, err = client.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestClient_GetStatus(t *testing.T) {
	client, cp := setupClient(t)
	id := cp.AddDeployment("demo", "completed")
	cp.SetStatus(id, "completed", "https://demo.example.com")

	d, err := client.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "demo", d.Name)
	assert.Equal(t, status.Completed, d.State)
	assert.Equal(t, "https://demo.example.com", d.URL)
	assert.Equal(t, "aws", d.Platform)
}

func TestClient_GetStatus_NotFound(t *testing.T) {
	client, _ := setupClient(t)

	_, err := client.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientError)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Deployment not found", apiErr.Message)
	assert.True(t, apiErr.ResponseReceived())
	assert.False(t, apiErr.Retryable())
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
	}{
		{"401", http.StatusUnauthorized, ErrUnauthorized},
		{"403", http.StatusForbidden, ErrUnauthorized},
		{"422", http.StatusUnprocessableEntity, ErrClientError},
		{"429", http.StatusTooManyRequests, ErrClientError},
		{"500", http.StatusInternalServerError, ErrServerError},
		{"503", http.StatusServiceUnavailable, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := rawServer(t, tt.code, `{"detail":"boom"}`)
			_, err := client.GetStatus(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), "server responded with HTTP")
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestClient_Unauthorized(t *testing.T) {
	cp := apitest.New(testKey)
	base := cp.Start(t)
	client, err := New(base, "wrong-key")
	require.NoError(t, err)

	_, err = client.GetStatus(context.Background(), "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNetworkUnreachable)
	assert.NotContains(t, err.Error(), "wrong-key")
}

func TestClient_NetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(base, testKey)
	require.NoError(t, err)

	_, err = client.Deploy(context.Background(), descriptor.Default("demo").DeployRequest(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.Contains(t, err.Error(), "no response received")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.ResponseReceived())
	assert.True(t, apiErr.Retryable())
	assert.True(t, IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	client, cp := setupClient(t, WithTimeout(50*time.Millisecond))
	cp.SetDelay(500 * time.Millisecond)

	_, err := client.ListDeployments(context.Background(), ListFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_GetLogs(t *testing.T) {
	client, cp := setupClient(t)
	id := cp.AddDeployment("demo", "running")
	cp.SetLogs(id,
		apitest.LogEntry{Timestamp: "2024-01-01T00:00:00Z", Level: "info", Message: "Building image"},
		apitest.LogEntry{Timestamp: "2024-01-01T00:00:05Z", Level: "error", Message: "Push failed"},
	)

	logs, err := client.GetLogs(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z [INFO] Building image\n2024-01-01T00:00:05Z [ERROR] Push failed", logs)
}

func TestClient_GetLogs_Text(t *testing.T) {
	client := rawServer(t, http.StatusOK, `{"logs":"line one\nline two"}`)

	logs, err := client.GetLogs(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", logs)

	odd := rawServer(t, http.StatusOK, `{"output":"x"}`)
	_, err = odd.GetLogs(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestClient_RemoveAndRedeploy(t *testing.T) {
	client, cp := setupClient(t)
	id := cp.AddDeployment("demo", "completed")

	res, err := client.Redeploy(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, id, res.DeploymentID)

	require.NoError(t, client.Remove(context.Background(), id))
	_, ok := cp.Deployment(id)
	assert.False(t, ok)

	err = client.Remove(context.Background(), id)
	assert.ErrorIs(t, err, ErrClientError)
}

func TestClient_Domains(t *testing.T) {
	client, cp := setupClient(t)

	require.NoError(t, client.AddDomain(context.Background(), " app.example.com "))
	assert.Equal(t, []string{"app.example.com"}, cp.Domains())

	domains, err := client.ListDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app.example.com"}, domains)

	err = client.AddDomain(context.Background(), "app.example.com")
	assert.ErrorIs(t, err, ErrClientError)
}

func TestClient_ListDomains_ObjectItems(t *testing.T) {
	client := rawServer(t, http.StatusOK, `[{"domain":"a.example.com"},"b.example.com",{"name":"c.example.com"},{}]`)

	domains, err := client.ListDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, domains)
}

func TestClient_GetUserInfo(t *testing.T) {
	client, _ := setupClient(t)

	info, err := client.GetUserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-1", info.ID)
	assert.Equal(t, "tester", info.Username)
}

func TestClient_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client, _ := setupClient(t)
		res := client.HealthCheck(context.Background())
		assert.True(t, res.OK)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Empty(t, res.Error)
		assert.Greater(t, res.Latency, time.Duration(0))
	})

	t.Run("server error", func(t *testing.T) {
		client, cp := setupClient(t)
		cp.FailNext(apitest.OpHealth, http.StatusServiceUnavailable, 1)
		res := client.HealthCheck(context.Background())
		assert.False(t, res.OK)
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
		assert.NotEmpty(t, res.Error)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()
		client, err := New(base, "", WithHealthTimeout(200*time.Millisecond))
		require.NoError(t, err)

		res := client.HealthCheck(context.Background())
		assert.False(t, res.OK)
		assert.Zero(t, res.StatusCode)
		assert.Contains(t, res.Error, "no response received")
	})
}

func TestClient_Metrics(t *testing.T) {
	metrics := observability.NewMetrics("gateway_test", prometheus.NewRegistry())
	client, cp := setupClient(t, WithMetrics(metrics))
	cp.FailNext(apitest.OpList, http.StatusInternalServerError, 1)

	_, err := client.ListDeployments(context.Background(), ListFilter{})
	require.Error(t, err)
	_, err = client.ListDeployments(context.Background(), ListFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("list deployments", "server_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("list deployments", "ok")))
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "bad key", extractMessage([]byte(`{"detail":"bad key"}`)))
	assert.Equal(t, "nope", extractMessage([]byte(`{"error":"nope"}`)))
	assert.Equal(t, "hi", extractMessage([]byte(`{"detail":"","message":"hi"}`)))
	assert.Equal(t, `[{"loc":["body","name"],"msg":"field required"}]`,
		extractMessage([]byte(`{"detail":[{"loc":["body","name"],"msg":"field required"}]}`)))
	assert.Equal(t, "Bad Gateway", extractMessage([]byte("Bad Gateway\n")))
	assert.Empty(t, extractMessage(nil))
}
