// Package handlers 提供引擎的 HTTP 處理器
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/resolution"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// toCustomError 將服務層錯誤對應到 HTTP 狀態碼與錯誤代碼
func toCustomError(err error) *common.CustomError {
	var (
		custom   *common.CustomError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &custom):
		return custom
	case errors.As(err, &tooLarge):
		return common.NewError(common.ErrCodePayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge, err)
	case common.IsValidationError(err):
		return common.NewError(common.ErrCodeInvalidRequest, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, common.ErrOffline):
		return common.NewError(common.ErrCodeOffline, "engine is offline", http.StatusServiceUnavailable, err)
	case errors.Is(err, localstore.ErrFlushInProgress):
		return common.NewError(common.ErrCodeSyncInProgress, "a sync is already in progress", http.StatusConflict, err)
	case errors.Is(err, resolution.ErrNoRemote):
		return common.NewError(common.ErrCodeServiceUnavailable, "remote catalog is not configured", http.StatusServiceUnavailable, err)
	case errors.Is(err, common.ErrSyncDelivery):
		return common.NewError(common.ErrCodeSyncFailed, "some contributions could not be delivered", http.StatusBadGateway, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewError(common.ErrCodeGatewayTimeout, "request timed out", http.StatusGatewayTimeout, err)
	default:
		return common.NewError(common.ErrCodeInternalError, "internal server error", http.StatusInternalServerError, err)
	}
}

func errorBody(err error) (int, common.ErrorResponse) {
	ce := toCustomError(err)
	resp := common.ErrorResponse{Code: ce.Code, Message: ce.Message}
	if gin.IsDebugging() && ce.Err != nil {
		resp.Details = ce.Err.Error()
	}
	return ce.Status, resp
}

// respondError 記錄錯誤並回傳統一格式的錯誤回應
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, resp := errorBody(err)
	c.AbortWithStatusJSON(status, resp)
}

// bindJSON 解析請求體；失敗時已寫出 400 或 413
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = common.NewError(common.ErrCodeInvalidRequest, "invalid request body", http.StatusBadRequest, err)
		}
		respondError(c, err)
		return false
	}
	return true
}
