package http

import (
	"time"

	"checkout-saga/internal/models"
)

type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  uint32 `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CancelOrderRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type OrderItemResponse struct {
	ProductID      string `json:"product_id"`
	Quantity       uint32 `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
	CurrencyCode   string `json:"currency_code"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	TotalPriceCents int64               `json:"total_price_cents"`
	CurrencyCode    string              `json:"currency_code"`
	PaymentRef      *string             `json:"payment_ref,omitempty"`
	CancelReason    *string             `json:"cancel_reason,omitempty"`
	Items           []OrderItemResponse `json:"items,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		Status:          string(o.Status),
		TotalPriceCents: o.TotalPriceCents,
		CurrencyCode:    o.CurrencyCode,
		PaymentRef:      o.PaymentRef,
		CancelReason:    o.CancelReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:      it.ProductID.String(),
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
			CurrencyCode:   it.CurrencyCode,
		})
	}
	return resp
}
