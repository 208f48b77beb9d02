package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"shop-service/internal/cart"
	"shop-service/internal/orders"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type cartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,min=1"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

func (h *Handler) cartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrCartNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrUnavailable), errors.Is(err, cart.ErrInsufficientStock):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "retry": true})
	default:
		// product lookups surface catalog errors
		h.productError(c, err)
	}
}

func (h *Handler) NewCart(c *gin.Context) {
	ct, err := h.Carts.New(c.Request.Context())
	if err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ct)
}

func (h *Handler) ViewCart(c *gin.Context) {
	v, err := h.Carts.View(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	ct, err := h.Carts.AddItem(c.Request.Context(), c.Param("token"), req.ProductID, req.Quantity)
	if err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

// SetCartItem overwrites the quantity of one product; zero removes it.
func (h *Handler) SetCartItem(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}
	var body struct {
		Quantity int `json:"quantity" validate:"min=0"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	ct, err := h.Carts.SetQuantity(c.Request.Context(), c.Param("token"), productID, body.Quantity)
	if err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}
	ct, err := h.Carts.RemoveItem(c.Request.Context(), c.Param("token"), productID)
	if err != nil {
		h.cartError(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

// CheckoutCart turns the cart into an order and empties it on success.
func (h *Handler) CheckoutCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	token := c.Param("token")

	var contact orders.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(contact); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	ct, err := h.Carts.Get(c.Request.Context(), token)
	if err != nil {
		h.cartError(c, err)
		return
	}

	req := orders.NewOrder{Contact: contact, IP: c.ClientIP()}
	for _, it := range ct.Items {
		req.Items = append(req.Items, orders.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.Builder.Create(c.Request.Context(), principal(c), req)
	if err != nil {
		h.orderError(c, err)
		return
	}
	h.Catalog.Invalidate(c.Request.Context(), productIDs(o)...)

	if err := h.Carts.Clear(c.Request.Context(), token); err != nil {
		slog.Error("failed to clear cart after checkout", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.CartToken, token), slog.String(logkey.ERROR, err.Error()))
	}
	c.JSON(http.StatusCreated, o)
}
