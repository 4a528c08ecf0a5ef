package idem

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/onetake/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(r http.Handler, header, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(header, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGinMiddlewareReplaysResponse(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	var calls atomic.Int32

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		n := calls.Add(1)
		c.Header("X-Order", "42")
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	key := testkit.NewID()
	first := doRequest(r, "X-Idempotency-Key", key)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.JSONEq(t, `{"call":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get(HeaderReplayed))

	second := doRequest(r, "X-Idempotency-Key", key)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, "42", second.Header().Get("X-Order"))
	assert.Equal(t, first.Header().Get("Content-Type"), second.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGinMiddlewareReplayOverridesUpstreamHeaders(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	var seq atomic.Int32

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-Id", fmt.Sprintf("req-%d", seq.Add(1)))
		c.Next()
	})
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	key := testkit.NewID()
	first := doRequest(r, "X-Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, []string{"req-1"}, first.Header().Values("X-Request-Id"))

	second := doRequest(r, "X-Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, []string{"req-1"}, second.Header().Values("X-Request-Id"))
	assert.Len(t, second.Header().Values("Content-Type"), 1)
}

func TestGinMiddlewareWithoutKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	var calls atomic.Int32

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusNoContent)
	})

	doRequest(r, "", "")
	doRequest(r, "", "")
	assert.Equal(t, int32(2), calls.Load())
}

func TestGinMiddlewareRequireKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	var calls atomic.Int32

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(WithRequireKey()), func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusCreated)
	})

	w := doRequest(r, "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"header 'x-idempotency-key' is required to be sent."}`, w.Body.String())
	assert.Zero(t, calls.Load())
}

func TestGinMiddlewareCustomHeader(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	var calls atomic.Int32

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(WithHeaderKey("Idempotency-Key")), func(c *gin.Context) {
		calls.Add(1)
		c.String(http.StatusOK, "ok")
	})

	key := testkit.NewID()
	doRequest(r, "Idempotency-Key", key)
	w := doRequest(r, "Idempotency-Key", key)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "true", w.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGinMiddlewareSkipsErrorResponses(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	var calls atomic.Int32

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		calls.Add(1)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid"})
	})

	key := testkit.NewID()
	first := doRequest(r, "X-Idempotency-Key", key)
	second := doRequest(r, "X-Idempotency-Key", key)

	assert.Equal(t, http.StatusUnprocessableEntity, first.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.JSONEq(t, `{"error":"invalid"}`, second.Body.String())
	assert.Empty(t, second.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestGinMiddlewareRejectInProgress(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeReject})
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "in-flight"))

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := doRequest(r, "X-Idempotency-Key", key)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Failed to lock : request with this idempotency key is already in progress"}`, w.Body.String())
}

func TestGinMiddlewareHandlerPanic(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})

	r := gin.New()
	r.POST("/orders", coord.GinMiddleware(), func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(r, "X-Idempotency-Key", testkit.NewID())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to lock : boom"}`, w.Body.String())
}
