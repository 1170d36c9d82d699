package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 超過此數量時才清理已補滿的令牌桶
const bucketPruneThreshold = 4096

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter 以用戶端為單位的令牌桶限流器
type RateLimiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	buckets  map[string]*bucket
	now      func() time.Time
}

// NewRateLimiter 每個 key 在 window 內最多 requests 次，令牌以固定速率補充
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		capacity: float64(requests),
		rate:     float64(requests) / window.Seconds(),
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow 檢查 key 是否還有可用令牌
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.prune(now)
		b = &bucket{tokens: rl.capacity, last: now}
		rl.buckets[key] = b
	}

	b.tokens = math.Min(rl.capacity, b.tokens+now.Sub(b.last).Seconds()*rl.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter 補充一個令牌所需的時間
func (rl *RateLimiter) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / rl.rate)
}

func (rl *RateLimiter) prune(now time.Time) {
	if len(rl.buckets) < bucketPruneThreshold {
		return
	}
	for k, b := range rl.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*rl.rate >= rl.capacity {
			delete(rl.buckets, k)
		}
	}
}

// RateLimit 限流中間件，以用戶端 IP 區分
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	return rateLimit(NewRateLimiter(cfg.Requests, cfg.Window))
}

func rateLimit(limiter *RateLimiter) gin.HandlerFunc {
	retryAfter := int(math.Ceil(limiter.RetryAfter().Seconds()))
	return func(c *gin.Context) {
		if limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		common.LogInfo("Rate limit exceeded",
			zap.String("ip", c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
			Code:    common.ErrCodeTooManyRequests,
			Message: "too many requests",
		})
	}
}
