package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelFromString(t *testing.T) {
	assert.Equal(t, DEBUG, LogLevelFromString("debug"))
	assert.Equal(t, WARN, LogLevelFromString("WARNING"))
	assert.Equal(t, ERROR, LogLevelFromString("Error"))
	assert.Equal(t, INFO, LogLevelFromString("garbage"), "unknown level defaults to info")
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "FATAL", FATAL.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestCorrelationID(t *testing.T) {
	t.Run("generated IDs are unique", func(t *testing.T) {
		assert.NotEqual(t, NewCorrelationID(), NewCorrelationID())
	})

	t.Run("round trips through context", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "corr-123")
		assert.Equal(t, "corr-123", GetCorrelationID(ctx))
	})

	t.Run("absent ID reads empty", func(t *testing.T) {
		assert.Empty(t, GetCorrelationID(context.Background()))
	})
}

func TestLoggerLifecycle(t *testing.T) {
	logger := NewLogger(Config{Level: INFO, NodeID: "test-node"})

	ctx := WithCorrelationID(context.Background(), "c1")
	logger.Info(ctx, ComponentEngine, ActionSet, "message", map[string]interface{}{"k": "v"})
	logger.Debug(ctx, ComponentEngine, ActionGet, "filtered below level")
	logger.Timed(ctx, ComponentStore, ActionGet, "timed", 5*time.Millisecond)

	logger.Close()
}

func TestHTTPMiddleware(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetCorrelationID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates a correlation ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	})

	t.Run("propagates a caller-supplied ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("X-Correlation-ID", "caller-7")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "caller-7", rec.Header().Get("X-Correlation-ID"))
	})
}

func TestInitializeFromConfig(t *testing.T) {
	dir := t.TempDir()

	logger, err := InitializeFromConfig("node-1", LogConfig{
		Level:      "debug",
		EnableFile: true,
		LogDir:     dir,
	})
	require.NoError(t, err)
	defer logger.Close()

	assert.Same(t, logger, GetGlobalLogger())
}
