package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"shop-service/internal/auth"
	"shop-service/internal/orders"
	"shop-service/pkg/ctxmanage"
	"shop-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

type lineItemProblem struct {
	Index     int    `json:"index"`
	ProductID int64  `json:"product"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// orderError writes the response for a failed order operation.
func (h *Handler) orderError(c *gin.Context, err error) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var vErr *orders.ValidationError
	if errors.As(err, &vErr) {
		problems := make([]lineItemProblem, 0, len(vErr.Items))
		for _, it := range vErr.Items {
			problems = append(problems, lineItemProblem{
				Index:     it.Index,
				ProductID: it.ProductID,
				Code:      it.Code(),
				Message:   it.Err.Error(),
			})
		}
		c.AbortWithStatusJSON(validationStatus(vErr), gin.H{
			"error":       "order validation failed",
			"order_items": problems,
		})
		return
	}

	switch {
	case errors.Is(err, orders.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, orders.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
	case errors.Is(err, orders.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": http.StatusText(http.StatusForbidden)})
	case errors.Is(err, orders.ErrConflict):
		slog.Warn("order conflict", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "retry": true})
	case errors.Is(err, orders.ErrUnavailable), errors.Is(err, orders.ErrInsufficientStock):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("order operation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	}
}

// validationStatus picks one status for a multi-line failure: unknown
// products win over stock problems, which win over malformed input.
func validationStatus(vErr *orders.ValidationError) int {
	status := http.StatusBadRequest
	for _, it := range vErr.Items {
		switch {
		case errors.Is(it, orders.ErrNotFound):
			return http.StatusNotFound
		case errors.Is(it, orders.ErrUnavailable), errors.Is(it, orders.ErrInsufficientStock):
			status = http.StatusConflict
		}
	}
	return status
}

func (h *Handler) CreateOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if bodyTooLarge(c) {
		return
	}

	var req orders.NewOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req.Contact); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	req.IP = c.ClientIP()

	o, err := h.Builder.Create(c.Request.Context(), principal(c), req)
	if err != nil {
		h.orderError(c, err)
		return
	}
	h.Catalog.Invalidate(c.Request.Context(), productIDs(o)...)
	c.JSON(http.StatusCreated, o)
}

func productIDs(o orders.Order) []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func (h *Handler) ListOrders(c *gin.Context) {
	status := orders.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}
	list, err := h.Orders.ListByUser(c.Request.Context(), principal(c).UserID, status, false)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// MyOrders lists only orders that went through payment.
func (h *Handler) MyOrders(c *gin.Context) {
	list, err := h.Orders.ListByUser(c.Request.Context(), principal(c).UserID, "", true)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) SellerOrders(c *gin.Context) {
	list, err := h.Orders.ListForSeller(c.Request.Context(), principal(c).UserID)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.Orders.Get(c.Request.Context(), principal(c).UserID, id)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) OrderStats(c *gin.Context) {
	p := principal(c)
	stats, err := h.Orders.Stats(c.Request.Context(), p.UserID, p.Kind == auth.KindSeller)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Status orders.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || !body.Status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "a valid status is required"})
		return
	}

	o, err := h.Orders.UpdateStatus(c.Request.Context(), principal(c).UserID, id, body.Status)
	if err != nil {
		h.orderError(c, err)
		return
	}
	slog.Info("order status updated", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)),
		slog.Int64(logkey.OrderID, id), slog.String("status", string(body.Status)))
	c.JSON(http.StatusOK, o)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	o, err := h.Orders.Get(c.Request.Context(), principal(c).UserID, id)
	if err != nil {
		h.orderError(c, err)
		return
	}
	if err := h.Orders.Delete(c.Request.Context(), principal(c).UserID, id); err != nil {
		h.orderError(c, err)
		return
	}
	h.Catalog.Invalidate(c.Request.Context(), productIDs(o)...)
	c.Status(http.StatusNoContent)
}
