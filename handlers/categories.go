package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"shop-service/internal/products"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) categoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, products.ErrCategoryNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, products.ErrDuplicateCategory), errors.Is(err, products.ErrCategoryInUse):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("category operation failed", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
	}
}

func (h *Handler) ListCategories(c *gin.Context) {
	list, err := h.Categories.ListCategories(c.Request.Context())
	if err != nil {
		h.categoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cat, err := h.Categories.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.categoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if bodyTooLarge(c) {
		return
	}

	var nc products.NewCategory
	if err := c.ShouldBindJSON(&nc); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(nc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	cat, err := h.Categories.InsertCategory(c.Request.Context(), nc)
	if err != nil {
		h.categoryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok || bodyTooLarge(c) {
		return
	}

	var uc products.UpdateCategory
	if err := c.ShouldBindJSON(&uc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(uc); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	cat, err := h.Categories.UpdateCategory(c.Request.Context(), id, uc)
	if err != nil {
		h.categoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// DeleteCategory only succeeds once no product refers to the category.
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Categories.DeleteCategory(c.Request.Context(), id); err != nil {
		h.categoryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
