package handlers

import (
	"net/http"

	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// ParseQuantityRequest 數量解析請求
type ParseQuantityRequest struct {
	Text string `json:"text" binding:"required"`
}

// CombineQuantitiesRequest 數量合併請求
type CombineQuantitiesRequest struct {
	Quantities []ingredient.QuantityInput `json:"quantities" binding:"required"`
}

// ParseQuantity 解析自由文字數量
func (h *Handler) ParseQuantity(c *gin.Context) {
	var req ParseQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	parsed := ingredient.ParseQuantity(req.Text)
	if parsed == nil {
		respondError(c, common.NewValidationError("quantity text is blank"))
		return
	}
	c.JSON(http.StatusOK, parsed)
}

// CombineQuantities 合併多次提及的數量
func (h *Handler) CombineQuantities(c *gin.Context) {
	var req CombineQuantitiesRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, ingredient.CombineQuantities(req.Quantities))
}
