package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStorage struct {
	err error
}

func (that stubStorage) Ping(context.Context) error {
	return that.err
}

func newTestServer(storageErr error) http.Handler {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tictactoe_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, stubStorage{err: storageErr}, registry).Handler()
}

func TestPing(t *testing.T) {
	// Given: the REST handler
	handler := newTestServer(nil)

	// When: GET /ping
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	// Then: pong
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHealthz(t *testing.T) {
	t.Run("Healthy storage", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var response HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "healthy", response.Checks["storage"])
	})

	t.Run("Storage down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestServer(errors.New("redis down")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var response HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "unhealthy", response.Status)
		assert.Contains(t, response.Checks["storage"], "redis down")
	})
}

func TestMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tictactoe_test_total 1")
}
