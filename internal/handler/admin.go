package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/domain/product"
	"github.com/threadline/storefront/internal/domain/user"
)

// optField is a nullable PATCH field with three states: absent, explicit
// null, and a value. A plain pointer collapses the first two, which would
// make fields like salePrice settable but never clearable.
type optField[T any] struct {
	present bool
	value   *T
}

var jsonNull = []byte("null")

func (o *optField[T]) UnmarshalJSON(b []byte) error {
	o.present = true
	if bytes.Equal(b, jsonNull) {
		o.value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.value = &v
	return nil
}

// --- Products ---

// productPayload is the admin write shape. Pointer fields distinguish
// "absent" from zero on PATCH; nullable columns use optField so an explicit
// null clears them.
type productPayload struct {
	Name             *string           `json:"name"`
	Slug             *string           `json:"slug"`
	Description      *string           `json:"description"`
	Price            *float64          `json:"price"`
	SalePrice        optField[float64] `json:"salePrice"`
	Inventory        *int              `json:"inventory"`
	Category         *string           `json:"category"`
	ClothType        *string           `json:"clothType"`
	Sizes            *[]string         `json:"sizes"`
	Colors           *[]string         `json:"colors"`
	Tags             *[]string         `json:"tags"`
	Images           *[]string         `json:"images"`
	IsActive         *bool             `json:"isActive"`
	HomePageFeatured *bool             `json:"homePageFeatured"`
}

func (p *productPayload) apply(dst *product.Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Slug != nil {
		dst.Slug = *p.Slug
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Price != nil {
		dst.Price = decimal.NewFromFloat(*p.Price)
	}
	if p.SalePrice.present {
		dst.SalePrice = toOptDecimal(p.SalePrice.value)
	}
	if p.Inventory != nil {
		dst.Inventory = *p.Inventory
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.ClothType != nil {
		dst.ClothType = *p.ClothType
	}
	if p.Sizes != nil {
		dst.Sizes = *p.Sizes
	}
	if p.Colors != nil {
		dst.Colors = *p.Colors
	}
	if p.Tags != nil {
		dst.Tags = *p.Tags
	}
	if p.Images != nil {
		dst.Images = *p.Images
	}
	if p.IsActive != nil {
		dst.IsActive = *p.IsActive
	}
	if p.HomePageFeatured != nil {
		dst.HomePageFeatured = *p.HomePageFeatured
	}
}

func (p *productPayload) validateCreate() string {
	switch {
	case p.Name == nil || *p.Name == "":
		return "name is required"
	case p.Slug == nil || *p.Slug == "":
		return "slug is required"
	case p.Price == nil || *p.Price <= 0:
		return "price must be greater than 0"
	case p.Category == nil || *p.Category == "":
		return "category is required"
	case p.Inventory != nil && *p.Inventory < 0:
		return "inventory cannot be negative"
	}
	return ""
}

// AdminListProducts lists the full catalog, inactive products included.
func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, false)
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validateCreate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	p := product.Product{ID: uuid.New().String(), IsActive: true}
	req.apply(&p)

	if err := h.products.Create(r.Context(), &p); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"product": h.toProductResponse(p)})
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	req.apply(p)
	if p.Inventory < 0 {
		respondError(w, http.StatusBadRequest, "inventory cannot be negative")
		return
	}

	if err := h.products.Update(r.Context(), p); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product": h.toProductResponse(*p)})
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Coupons ---

type couponPayload struct {
	Code              *string           `json:"code"`
	Description       *string           `json:"description"`
	DiscountType      *string           `json:"discountType"`
	DiscountValue     *float64          `json:"discountValue"`
	MinimumPurchase   optField[float64] `json:"minimumPurchase"`
	MaximumDiscount   optField[float64] `json:"maximumDiscount"`
	IsActive          *bool             `json:"isActive"`
	StartsAt          *string           `json:"startsAt"`
	EndsAt            optField[string]  `json:"endsAt"`
	MaxUsage          optField[int]     `json:"maxUsage"`
	MaxUsagePerUser   optField[int]     `json:"maxUsagePerUser"`
	IsSingleUse       *bool             `json:"isSingleUse"`
	IsFirstTimeOnly   *bool             `json:"isFirstTimeOnly"`
	ProductCategories *[]string         `json:"productCategories"`
}

func (p *couponPayload) apply(dst *coupon.Coupon) string {
	if p.Code != nil {
		dst.Code = *p.Code
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.DiscountType != nil {
		t := coupon.DiscountType(*p.DiscountType)
		if t != coupon.DiscountPercentage && t != coupon.DiscountFixedAmount {
			return "discountType must be PERCENTAGE or FIXED_AMOUNT"
		}
		dst.DiscountType = t
	}
	if p.DiscountValue != nil {
		dst.DiscountValue = decimal.NewFromFloat(*p.DiscountValue)
	}
	if p.MinimumPurchase.present {
		dst.MinimumPurchase = toOptDecimal(p.MinimumPurchase.value)
	}
	if p.MaximumDiscount.present {
		dst.MaximumDiscount = toOptDecimal(p.MaximumDiscount.value)
	}
	if p.IsActive != nil {
		dst.IsActive = *p.IsActive
	}
	if p.StartsAt != nil {
		t, err := time.Parse(timeLayout, *p.StartsAt)
		if err != nil {
			return "startsAt must be RFC 3339"
		}
		dst.StartsAt = t
	}
	if p.EndsAt.present {
		if p.EndsAt.value == nil {
			dst.EndsAt = nil
		} else {
			t, err := time.Parse(timeLayout, *p.EndsAt.value)
			if err != nil {
				return "endsAt must be RFC 3339"
			}
			dst.EndsAt = &t
		}
	}
	if p.MaxUsage.present {
		dst.MaxUsage = p.MaxUsage.value
	}
	if p.MaxUsagePerUser.present {
		dst.MaxUsagePerUser = p.MaxUsagePerUser.value
	}
	if p.IsSingleUse != nil {
		dst.IsSingleUse = *p.IsSingleUse
	}
	if p.IsFirstTimeOnly != nil {
		dst.IsFirstTimeOnly = *p.IsFirstTimeOnly
	}
	if p.ProductCategories != nil {
		dst.ProductCategories = *p.ProductCategories
	}
	if !dst.DiscountValue.IsPositive() {
		return "discountValue must be greater than 0"
	}
	// The cap only makes sense for percentage discounts; fixed amounts are
	// their own cap.
	if dst.DiscountType == coupon.DiscountFixedAmount && dst.MaximumDiscount != nil {
		return "maximumDiscount applies to percentage coupons only"
	}
	return ""
}

func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponRepo.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]couponResponse, len(coupons))
	for i, c := range coupons {
		out[i] = toCouponResponse(c)
	}
	respondJSON(w, http.StatusOK, map[string]any{"coupons": out})
}

func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == nil || *req.Code == "" || req.DiscountType == nil || req.DiscountValue == nil {
		respondError(w, http.StatusBadRequest, "code, discountType, and discountValue are required")
		return
	}

	c := coupon.Coupon{
		ID:       uuid.New().String(),
		IsActive: true,
		StartsAt: time.Now().UTC(),
	}
	if msg := req.apply(&c); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.couponRepo.Create(r.Context(), &c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"coupon": toCouponResponse(c)})
}

func (h *Handler) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.couponRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if msg := req.apply(c); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.couponRepo.Update(r.Context(), c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"coupon": toCouponResponse(*c)})
}

func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Users ---

type userResponse struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role"`
	Wishlist  []string `json:"wishlist,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		Wishlist:  u.Wishlist,
		CreatedAt: u.CreatedAt.UTC().Format(timeLayout),
	}
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(*u)})
}

func (h *Handler) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role := user.Role(req.Role)
	if !user.ValidRole(role) {
		respondError(w, http.StatusBadRequest, "role must be USER or ADMIN")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.users.UpdateRole(r.Context(), id, role); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(*u)})
}

func (h *Handler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	// Admins cannot delete themselves; it would orphan the API key in use.
	if chi.URLParam(r, "id") == identity(r).UserID {
		respondError(w, http.StatusConflict, "cannot delete your own account")
		return
	}
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Orders ---

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	filter := order.ListFilter{UserID: r.URL.Query().Get("userId")}
	if s := r.URL.Query().Get("status"); s != "" {
		status := order.Status(s)
		if !order.ValidStatus(status) {
			respondError(w, http.StatusBadRequest, "unknown order status")
			return
		}
		filter.Status = status
	}

	orders, err := h.orderRepo.List(r.Context(), filter)
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

func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(o)})
}

func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := order.Status(req.Status)
	if !order.ValidStatus(status) {
		respondError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(o)})
}
