package handlers

import (
	"net/http"

	"ingredient-engine/internal/core/grocery"

	"github.com/gin-gonic/gin"
)

// BuildGroceryList 合併食譜食材並產生排序後的購物清單
func (h *Handler) BuildGroceryList(c *gin.Context) {
	var req grocery.Request
	if !bindJSON(c, &req) {
		return
	}

	list, err := h.builder.Build(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
