package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/config"
	"github.com/Ramsey-B/iris/pkg/startup"
)

func memoryConfig() *config.Config {
	return &config.Config{
		AppName:             "iris-test",
		Version:             "test",
		LogLevel:            "info",
		StoreDriver:         config.StoreDriverMemory,
		LockStrategy:        config.LockStrategyNone,
		IdentifyMaxAttempts: 3,
		MaxWalkDepth:        16,
		AllowOrigins:        []string{"*"},
		AllowMethods:        []string{"GET", "POST"},
		TracingExporter:     "none",
		StartupMaxAttempts:  1,
	}
}

func TestApp_MemoryStoreServesIdentify(t *testing.T) {
	a := newApp(memoryConfig(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, a.startup.Start(t.Context()))
	assert.Equal(t, startup.StartupStatusStarted, a.startup.Status("api"))

	req := httptest.NewRequest(http.MethodPost, "/api/identify", strings.NewReader(`{"email":"a@x.com"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready until the server is listening")

	require.NoError(t, a.startup.Stop(t.Context()))
}

func TestSkipOperational(t *testing.T) {
	e := echo.New()
	for path, want := range map[string]bool{
		"/metrics":          true,
		"/api/health":       true,
		"/api/health/ready": true,
		"/api/identify":     false,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		assert.Equal(t, want, skipOperational(c), path)
	}
}

func TestNewZapLogger(t *testing.T) {
	_, err := newZapLogger(&config.Config{LogLevel: "debug", PrettyLogs: true})
	require.NoError(t, err)

	_, err = newZapLogger(&config.Config{LogLevel: "loud"})
	assert.Error(t, err)
}
