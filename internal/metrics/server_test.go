package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMiddleware(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		status  string
	}{
		{
			name:    "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("x")) },
			status:  "200",
		},
		{
			name:    "explicit error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			status:  "503",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			counter := EndpointResponses.WithLabelValues("/test", tc.status)
			before := testutil.ToFloat64(counter)

			rr := httptest.NewRecorder()
			Middleware(tc.handler, "/test").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, float64(1), testutil.ToFloat64(counter)-before)
		})
	}
}

func TestHandler(t *testing.T) {
	DispatchGFLOPS.Set(42)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gemm_dispatch_gflops 42")

	rr = httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())
}

func TestServer(t *testing.T) {
	s := NewServer("127.0.0.1:0", zaptest.NewLogger(t))
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + HealthPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))

	require.NoError(t, s.Shutdown(context.Background()))
	_, err = http.Get("http://" + s.Addr() + HealthPath)
	assert.Error(t, err)
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	s := NewServer(":0", zaptest.NewLogger(t))
	assert.Equal(t, ":0", s.Addr())
	assert.NoError(t, s.Shutdown(context.Background()))
}
