package handlers

import (
	"ingredient-engine/internal/core/grocery"
	"ingredient-engine/internal/core/resolution"
)

// Handler 引擎 API 處理器
type Handler struct {
	builder  *grocery.Builder
	resolver *resolution.Service
}

// NewHandler 建立處理器
func NewHandler(builder *grocery.Builder, resolver *resolution.Service) *Handler {
	return &Handler{
		builder:  builder,
		resolver: resolver,
	}
}
