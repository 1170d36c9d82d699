package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	return e.message
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"   // 400
	ErrCodeNotFound        = "NOT_FOUND"         // 404
	ErrCodeRequestTimeout  = "REQUEST_TIMEOUT"   // 408
	ErrCodeConflict        = "CONFLICT"          // 409
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE" // 413
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS" // 429

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"     // 504

	// 業務錯誤
	ErrCodeUpstreamRejected = "UPSTREAM_REJECTED"
	ErrCodeOffline          = "OFFLINE"
	ErrCodeSyncInProgress   = "SYNC_IN_PROGRESS"
	ErrCodeSyncFailed       = "SYNC_FAILED"
)

// 預定義錯誤
var (
	ErrInvalidRequest     = NewError(ErrCodeInvalidRequest, "無效的請求", http.StatusBadRequest, nil)
	ErrTooManyRequests    = NewError(ErrCodeTooManyRequests, "請求過於頻繁", http.StatusTooManyRequests, nil)
	ErrInternalError      = NewError(ErrCodeInternalError, "服務器內部錯誤", http.StatusInternalServerError, nil)
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "服務暫時不可用", http.StatusServiceUnavailable, nil)
	ErrGatewayTimeout     = NewError(ErrCodeGatewayTimeout, "網關超時", http.StatusGatewayTimeout, nil)
	ErrCacheFull          = NewError("CACHE_FULL", "緩存已滿", http.StatusServiceUnavailable, nil)
)

// 引擎內部錯誤分類
var (
	// ErrParseFailure 數量或 AI 回應無法解析
	ErrParseFailure = errors.New("parse failure")
	// ErrClassificationMiss 所有分類層級都未命中
	ErrClassificationMiss = errors.New("classification miss")
	// ErrUpstreamTimeout 網路層級超時，視為未命中
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrCacheWriteFailure 寫回快取失敗，不影響已取得的分類
	ErrCacheWriteFailure = errors.New("cache write failure")
	// ErrSyncDelivery 貢獻提交失敗，項目保留在佇列中
	ErrSyncDelivery = errors.New("sync delivery failure")
	// ErrOffline 離線狀態下無法執行網路操作
	ErrOffline = errors.New("offline")
)

// UpstreamRejectedError AI 服務以驗證、限流或錯誤請求拒絕
type UpstreamRejectedError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, e.Body)
}

// UserMessage 依狀態碼回傳給終端使用者的訊息
func (e *UpstreamRejectedError) UserMessage() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "AI classification is not authorized; check the API key configuration."
	case http.StatusTooManyRequests:
		return "AI classification is rate limited; please wait a moment and try again."
	case http.StatusBadRequest:
		return "AI classification rejected the request; some ingredients were left unclassified."
	default:
		return "AI classification is unavailable right now; basic classification was used."
	}
}

// IsRejectedStatus 判斷狀態碼是否屬於 AI 服務的拒絕類型
func IsRejectedStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// AsUpstreamRejected 從錯誤鏈中取出 UpstreamRejectedError
func AsUpstreamRejected(err error) (*UpstreamRejectedError, bool) {
	var rejected *UpstreamRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
