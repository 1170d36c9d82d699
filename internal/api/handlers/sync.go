package handlers

import (
	"errors"
	"net/http"

	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetModeRequest 切換連線狀態
type SetModeRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// ModeResponse 切換後的狀態；由離線轉為在線時附上同步結果
type ModeResponse struct {
	Mode    string                  `json:"mode"`
	Flush   *localstore.FlushResult `json:"flush,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

// FlushErrorResponse 部分送達時的錯誤回應
type FlushErrorResponse struct {
	common.ErrorResponse
	Result localstore.FlushResult `json:"result"`
}

// FlushContributions 立即送出待同步的貢獻
func (h *Handler) FlushContributions(c *gin.Context) {
	result, err := h.resolver.Flush(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}

	if errors.Is(err, common.ErrSyncDelivery) {
		_ = c.Error(err)
		status, body := errorBody(err)
		c.AbortWithStatusJSON(status, FlushErrorResponse{ErrorResponse: body, Result: result})
		return
	}
	respondError(c, err)
}

// SyncStatus 連線狀態、待同步數量與分類層級
func (h *Handler) SyncStatus(c *gin.Context) {
	status, err := h.resolver.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetMode 切換在線或離線
func (h *Handler) SetMode(c *gin.Context) {
	var req SetModeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.resolver.SetOnline(c.Request.Context(), *req.Online)
	resp := ModeResponse{Mode: h.resolver.Mode().String(), Flush: result}
	if err != nil {
		// 狀態已切換，同步失敗的項目留待下次
		common.LogWarn("恢復連線後同步失敗", zap.Error(err))
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
