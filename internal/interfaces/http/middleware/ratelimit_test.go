package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	limiter := NewRateLimiter(limit, window)
	t.Cleanup(limiter.Close)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	return limiter, &now
}

func TestRateLimiter(t *testing.T) {
	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 3, time.Minute)

		for i := 0; i < 3; i++ {
			ok, remaining := limiter.Allow("client")
			assert.True(t, ok, "request %d should be allowed", i+1)
			assert.Equal(t, 2-i, remaining)
		}
		ok, _ := limiter.Allow("client")
		assert.False(t, ok)
	})

	t.Run("separate limits per client", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 1, time.Minute)

		ok, _ := limiter.Allow("a")
		assert.True(t, ok)
		ok, _ = limiter.Allow("a")
		assert.False(t, ok)
		ok, _ = limiter.Allow("b")
		assert.True(t, ok)
	})

	t.Run("resets after window", func(t *testing.T) {
		limiter, now := newTestLimiter(t, 1, time.Minute)

		limiter.Allow("c")
		ok, _ := limiter.Allow("c")
		assert.False(t, ok)

		*now = now.Add(time.Minute)
		ok, _ = limiter.Allow("c")
		assert.True(t, ok)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 100, time.Minute)
		var wg sync.WaitGroup
		var allowed atomic.Int32

		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Allow("concurrent"); ok {
					allowed.Add(1)
				}
			}()
		}

		wg.Wait()
		assert.Equal(t, int32(100), allowed.Load())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		limiter.Close()
		limiter.Close()
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	router := gin.New()
	router.Use(RequestID(), Actor(), RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	call := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if actor != "" {
			req.Header.Set(ActorHeader, actor)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := call("")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, call("").Code)
	w = call("")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, call("ops").Code, "each actor has its own budget")
}
