// Package handler exposes the storefront and admin HTTP API. Handlers decode
// requests, delegate to domain services, and map typed domain errors to
// stable JSON responses; internals are logged, never leaked to clients.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/threadline/storefront/internal/domain/auth"
	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/domain/product"
	"github.com/threadline/storefront/internal/domain/user"
	"github.com/threadline/storefront/internal/payment"
)

// Gateway is the slice of the payment gateway the HTTP layer needs.
type Gateway interface {
	PublishableKey() string
	VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
	// APIKeyPepper is the HMAC key for API key hashing.
	APIKeyPepper []byte
}

// Handler carries the domain dependencies for all routes.
type Handler struct {
	cfg        Config
	products   product.Repository
	coupons    coupon.Validator
	couponRepo coupon.Repository
	orders     *order.Service
	orderRepo  order.Repository
	users      user.Repository
	apikeys    auth.Repository
	gateway    Gateway
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Validator,
	couponRepo coupon.Repository,
	orders *order.Service,
	orderRepo order.Repository,
	users user.Repository,
	apikeys auth.Repository,
	gateway Gateway,
) *Handler {
	return &Handler{
		cfg:        cfg,
		products:   products,
		coupons:    coupons,
		couponRepo: couponRepo,
		orders:     orders,
		orderRepo:  orderRepo,
		users:      users,
		apikeys:    apikeys,
		gateway:    gateway,
	}
}

// Routes builds the API router. The webhook route sits outside API key
// authentication: it is authenticated by its signature instead.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments/webhook", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.APIKeyAuth)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{slug}", h.GetProduct)
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListMyOrders)
		r.Get("/orders/{id}", h.GetMyOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAdmin)

			r.Get("/products", h.AdminListProducts)
			r.Post("/products", h.AdminCreateProduct)
			r.Patch("/products/{id}", h.AdminUpdateProduct)
			r.Delete("/products/{id}", h.AdminDeleteProduct)

			r.Get("/coupons", h.AdminListCoupons)
			r.Post("/coupons", h.AdminCreateCoupon)
			r.Patch("/coupons/{id}", h.AdminUpdateCoupon)
			r.Delete("/coupons/{id}", h.AdminDeleteCoupon)

			r.Get("/users", h.AdminListUsers)
			r.Get("/users/{id}", h.AdminGetUser)
			r.Patch("/users/{id}", h.AdminUpdateUser)
			r.Delete("/users/{id}", h.AdminDeleteUser)

			r.Get("/orders", h.AdminListOrders)
			r.Get("/orders/{id}", h.AdminGetOrder)
			r.Patch("/orders/{id}/status", h.AdminUpdateOrderStatus)
		})
	})

	return r
}

// timeLayout is the wire format for timestamps.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// errorBody is the stable error response shape.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondDomainError maps typed domain errors to HTTP responses. Unrecognized
// errors are logged with the request-scoped logger and surfaced as a generic
// 500 so internal detail never reaches the client.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *coupon.RejectionError
	if errors.As(err, &rej) {
		respondJSON(w, http.StatusBadRequest, errorBody{
			Error:  rej.Error(),
			Reason: string(rej.Reason),
		})
		return
	}

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, order.ErrAddressNotFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, user.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	var (
		iqErr    *order.InvalidQuantityError
		pnfErr   *order.ProductNotFoundError
		stockErr *order.InsufficientStockError
		transErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &iqErr), errors.As(err, &pnfErr), errors.As(err, &stockErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.As(err, &transErr):
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal server error")
}
