package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"shop-service/internal/payments"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) PayOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if h.Gateway == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Payments are not configured"})
		return
	}

	o, err := h.Orders.Get(c.Request.Context(), principal(c).UserID, id)
	if err != nil {
		h.orderError(c, err)
		return
	}

	checkout, err := h.Gateway.CreateCheckout(c.Request.Context(), o)
	switch {
	case errors.Is(err, payments.ErrNotPayable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("checkout session failed", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.OrderID, id), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Payment provider unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_number": o.OrderNumber,
		"session_id":   checkout.SessionID,
		"checkout_url": checkout.URL,
	})
}

// Webhook receives payment provider events. It must see the raw body for
// signature verification.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if h.Webhooks == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Payments are not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large."})
		return
	}

	res, err := h.Webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		slog.Error("webhook rejected", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		if errors.Is(err, payments.ErrBadEvent) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "handled": res.Handled})
}
