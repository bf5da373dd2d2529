package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/storefront/internal/domain/order"
)

// placeOrderRequest is the checkout payload. Prices are never taken from the
// client; the service recomputes everything from the catalog.
type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size,omitempty"`
		Color     string `json:"color,omitempty"`
	} `json:"items"`
	AddressID  string `json:"addressId"`
	CouponCode string `json:"couponCode,omitempty"`
}

// orderItemResponse mirrors the denormalized line-item snapshot.
type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	AddressID     string              `json:"addressId"`
	Items         []orderItemResponse `json:"items"`
	Subtotal      float64             `json:"subtotal"`
	Tax           float64             `json:"tax"`
	Shipping      float64             `json:"shipping"`
	Discount      float64             `json:"discountAmount"`
	CouponCode    string              `json:"couponCode,omitempty"`
	Total         float64             `json:"total"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"paymentStatus"`
	CreatedAt     string              `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.InexactFloat64(),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		}
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		AddressID:     o.AddressID,
		Items:         items,
		Subtotal:      o.Subtotal.InexactFloat64(),
		Tax:           o.Tax.InexactFloat64(),
		Shipping:      o.Shipping.InexactFloat64(),
		Discount:      o.Discount.InexactFloat64(),
		CouponCode:    o.CouponCode,
		Total:         o.Total.InexactFloat64(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt.UTC().Format(timeLayout),
	}
}

// PlaceOrder runs checkout: it validates the cart, assembles the totals,
// persists the order, and returns the payment-intent handle the client needs
// to bring up the payment widget.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, item := range req.Items {
		lines[i] = order.LineRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		}
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:     identity(r).UserID,
		AddressID:  req.AddressID,
		Items:      lines,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"order": toOrderResponse(result.Order),
		"payment": map[string]any{
			"key":      h.gateway.PublishableKey(),
			"id":       result.Payment.ID,
			"secret":   result.Payment.ClientSecret,
			"amount":   result.Payment.Amount,
			"currency": result.Payment.Currency,
		},
	})
}

// ListMyOrders returns the caller's own orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderRepo.List(r.Context(), order.ListFilter{UserID: identity(r).UserID})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// GetMyOrder returns one of the caller's orders. Other users' orders read as
// not found rather than forbidden, so order IDs are not probeable.
func (h *Handler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if o.UserID != identity(r).UserID {
		h.respondDomainError(w, r, order.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(o)})
}
