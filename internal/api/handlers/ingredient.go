package handlers

import (
	"net/http"

	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/core/resolution"

	"github.com/gin-gonic/gin"
)

// NormalizeResponse 正規化結果
type NormalizeResponse struct {
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
}

// ClassifyIngredient 分類單一食材；未命中時仍回傳 200 與 unclassified 結果
func (h *Handler) ClassifyIngredient(c *gin.Context) {
	var req resolution.Request
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TagIngredient 使用者手動指定分類，離線時也可使用
func (h *Handler) TagIngredient(c *gin.Context) {
	var req resolution.TagRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.resolver.Tag(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// NormalizeIngredient 回傳名稱的正規化鍵
func (h *Handler) NormalizeIngredient(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, NormalizeResponse{Name: req.Name, NormalizedName: ingredient.Normalize(req.Name)})
}
