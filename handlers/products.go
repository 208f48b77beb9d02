package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"shop-service/internal/auth"
	"shop-service/internal/products"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListProducts(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	f := products.Filter{Name: c.Query("name")}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if s := c.Query("category"); s != "" {
		f.CategoryID, _ = strconv.ParseInt(s, 10, 64)
	}
	if s := c.Query("seller_id"); s != "" {
		f.SellerID, _ = strconv.ParseInt(s, 10, 64)
	}
	// mine=true lists the calling seller's own catalog
	if c.Query("mine") == "true" {
		p := principal(c)
		switch {
		case p.IsAnonymous():
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		case !p.Can(auth.CapManageCatalog):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Only sellers have their own products"})
			return
		}
		f.SellerID = p.UserID
	}

	list, err := h.Catalog.List(c.Request.Context(), f)
	if err != nil {
		slog.Error("error listing products", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		h.productError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if bodyTooLarge(c) {
		return
	}

	var np products.NewProduct
	if err := c.ShouldBindJSON(&np); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(np); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	p, err := h.Catalog.Create(c.Request.Context(), principal(c).UserID, np)
	if err != nil {
		h.productError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	id, ok := paramID(c, "id")
	if !ok || bodyTooLarge(c) {
		return
	}

	var up products.UpdateProduct
	if err := c.ShouldBindJSON(&up); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(up); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	p, err := h.Catalog.Update(c.Request.Context(), principal(c).UserID, id, up)
	if err != nil {
		h.productError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProduct hides one of the seller's products from the catalog.
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.Delete(c.Request.Context(), principal(c).UserID, id); err != nil {
		h.productError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) productError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, products.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, products.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, products.ErrInvalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("product operation failed", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
	}
}
