package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNew(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", " INFO "} {
		logger, err := New(lvl)
		require.NoError(t, err, lvl)
		assert.NotNil(t, logger)
	}

	_, err := New("loud")
	assert.Error(t, err)
}

func newRouter(logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Access(logger), Recovery(logger))
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})
	r.GET("/bad", func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	r := newRouter(zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, w.Body.String())
}

func TestRequestIDReused(t *testing.T) {
	r := newRouter(zap.NewNop())
	incoming := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, incoming)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(RequestIDHeader))
}

func TestAccessLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(zap.New(core))

	for _, path := range []string{"/ok", "/bad", "/panic"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 3)
	assert.Equal(t, zapcore.InfoLevel, requests[0].Level)
	assert.Equal(t, zapcore.WarnLevel, requests[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, requests[2].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), requests[2].ContextMap()["status"])

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
