package http

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-saga/internal/models"
	"checkout-saga/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
)

type OrderHandler struct {
	svc service.OrderService
	log *zap.Logger
}

func NewOrderHandler(svc service.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, log: log}
}

// authContext переносит идентичность из заголовков шлюза в контекст сервиса.
func (h *OrderHandler) authContext(c *gin.Context) (bool, error) {
	raw := c.GetHeader(headerUserID)
	if raw == "" {
		return false, nil
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return false, err
	}
	ctx := service.WithUserID(c.Request.Context(), uid)
	if role := c.GetHeader(headerUserRole); role != "" {
		ctx = service.WithRole(ctx, service.Role(role))
	}
	c.Request = c.Request.WithContext(ctx)
	return true, nil
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ok, err := h.authContext(c)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + headerUserID})
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid create order request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	in := service.CreateOrderInput{
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	}
	for _, it := range req.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id: " + it.ProductID})
			return
		}
		in.Items = append(in.Items, service.CreateOrderItem{ProductID: pid, Quantity: it.Quantity})
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ok, err := h.authContext(c)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + headerUserID})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order id"})
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ok, err := h.authContext(c)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + headerUserID})
		return
	}

	var f service.ListFilter
	if raw := c.Query("status"); raw != "" {
		st := models.OrderStatus(raw)
		f.Status = &st
	}
	if n, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		f.Offset = n
	}

	orders, total, err := h.svc.ListOrders(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := ListOrdersResponse{Total: total, Orders: make([]OrderResponse, 0, len(orders))}
	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ok, err := h.authContext(c)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + headerUserID})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order id"})
		return
	}

	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req) // тело опционально

	order, err := h.svc.CancelOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrQuantityInvalid),
		errors.Is(err, service.ErrCurrencyMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrOutOfStock):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAlreadyConfirmed),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
