package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 超過此數量時才清理過期指紋
const dedupPruneThreshold = 1024

// Deduplicator 拒絕同一用戶端在時間窗內重送的相同寫入請求
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewDeduplicator 建立去重器；window <= 0 時不去重
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Deduplication 依 cfg.DedupWindow 建立去重中間件
func Deduplication(cfg *config.Config) gin.HandlerFunc {
	var window time.Duration
	if cfg != nil {
		window = cfg.DedupWindow
	}
	return NewDeduplicator(window).Handler()
}

// Handler 只處理 POST 與 PUT；指紋由用戶端 IP、方法、路徑與請求體雜湊組成
func (d *Deduplicator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.window <= 0 || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut) {
			c.Next()
			return
		}

		fingerprint := c.ClientIP() + ":" + c.Request.Method + ":" + c.Request.URL.Path
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				abortUnreadable(c, err)
				return
			}
			hash := sha256.Sum256(body)
			fingerprint += ":" + hex.EncodeToString(hash[:])
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		if d.duplicate(fingerprint) {
			common.LogInfo("重複請求已拒絕",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "duplicate request; please wait before retrying",
			})
			return
		}

		c.Next()
	}
}

// duplicate 回報指紋是否在時間窗內出現過，並記錄本次時間
func (d *Deduplicator) duplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[fingerprint]; ok && now.Sub(last) <= d.window {
		return true
	}
	d.seen[fingerprint] = now

	if len(d.seen) > dedupPruneThreshold {
		for k, t := range d.seen {
			if now.Sub(t) > d.window {
				delete(d.seen, k)
			}
		}
	}
	return false
}

func abortUnreadable(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
			Code:    common.ErrCodePayloadTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	common.LogWarn("讀取請求體失敗", zap.Error(err), zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusBadRequest, common.ErrorResponse{
		Code:    common.ErrCodeInvalidRequest,
		Message: "failed to read request body",
	})
}
