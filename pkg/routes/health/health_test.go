package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(c *Checker, path string) *httptest.ResponseRecorder {
	e := echo.New()
	c.Register(e.Group("/api/health"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	ok := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all checks pass", func(t *testing.T) {
		rec := serve(NewChecker("1.0.0", map[string]Pinger{"database": ok, "redis": nil}), "/api/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "ok", status.Status)
		assert.Equal(t, "1.0.0", status.Version)
		assert.Contains(t, status.Checks, "database")
		assert.NotContains(t, status.Checks, "redis")
	})

	t.Run("a failing check reports unavailable", func(t *testing.T) {
		rec := serve(NewChecker("1.0.0", map[string]Pinger{"database": ok, "redis": down}), "/api/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unavailable", status.Status)
		assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	})
}

func TestReadyAndLive(t *testing.T) {
	c := NewChecker("dev", nil)

	assert.Equal(t, http.StatusOK, serve(c, "/api/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(c, "/api/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(c, "/api/health/ready").Code)
}
