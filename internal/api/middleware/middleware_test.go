package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	echo := func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, string(body))
	}
	r.POST("/echo", echo)
	r.PUT("/echo", echo)
	r.GET("/echo", echo)
	return r
}

func do(r http.Handler, method, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/echo", strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBodySizeLimit(t *testing.T) {
	r := newEngine(BodySizeLimit(8))

	w := do(r, http.MethodPost, "small")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "small", w.Body.String())

	w = do(r, http.MethodPost, "this body is too large")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, common.ErrCodePayloadTooLarge, decodeError(t, w).Code)

	// 未帶 Content-Length 時由讀取端截斷
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("this body is too large"))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestBodySizeLimitDisabled(t *testing.T) {
	r := newEngine(BodySizeLimit(0))
	w := do(r, http.MethodPost, strings.Repeat("x", 4096))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeduplication(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeduplicator(time.Second)
	d.now = func() time.Time { return now }
	r := newEngine(d.Handler())

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, `{"name":"kale"}`).Code)

	w := do(r, http.MethodPost, `{"name":"kale"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, common.ErrCodeTooManyRequests, decodeError(t, w).Code)

	// 不同請求體與 GET 不受影響
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, `{"name":"leek"}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)

	// 請求體在去重後仍可讀取
	now = now.Add(2 * time.Second)
	w = do(r, http.MethodPost, `{"name":"kale"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"name":"kale"}`, w.Body.String())
}

func TestDeduplicationPrunesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeduplicator(time.Second)
	d.now = func() time.Time { return now }

	for i := 0; i <= dedupPruneThreshold; i++ {
		assert.False(t, d.duplicate(strings.Repeat("k", i+1)))
	}
	now = now.Add(time.Minute)
	assert.False(t, d.duplicate("fresh"))
	assert.Len(t, d.seen, 1)
}

func TestDeduplicationDisabled(t *testing.T) {
	r := newEngine(Deduplication(nil))
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "x").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "x").Code)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 500*time.Millisecond, rl.RetryAfter())
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	r := newEngine(rateLimit(rl))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "").Code)

	w := do(r, http.MethodGet, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, common.ErrCodeTooManyRequests, decodeError(t, w).Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, common.ErrCodeRequestTimeout, decodeError(t, w).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(), Logger())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, common.ErrCodeInternalError, decodeError(t, w).Code)
}
