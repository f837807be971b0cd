package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(base *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(base), Recovery(base))
	r.GET("/stocks/:id", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("handler", zap.String("actor_seen", Actor(c.Request.Context())))
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestGinMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestEngine(zap.New(core))

	t.Run("propagates the incoming request id and actor", func(t *testing.T) {
		logs.TakeAll()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/stocks/42", nil)
		req.Header.Set(HeaderRequestID, "abc")
		req.Header.Set(HeaderActor, "clerk-1")
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
		entries := logs.All()
		require.Len(t, entries, 2)
		assert.Equal(t, "clerk-1", entries[0].ContextMap()["actor_seen"])
		assert.Equal(t, "abc", entries[0].ContextMap()["request_id"])
		assert.Equal(t, "request served", entries[1].Message)
		assert.Equal(t, "/stocks/:id", entries[1].ContextMap()["route"])
	})

	t.Run("generates a request id and warns on client errors", func(t *testing.T) {
		logs.TakeAll()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		entries := logs.FilterMessage("request rejected").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("recovers panics as 500", func(t *testing.T) {
		logs.TakeAll()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
		assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
	})
}
