package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/product"
)

// validateCouponRequest carries the cart a coupon is checked against. Prices
// and categories come from the catalog, not the client.
type validateCouponRequest struct {
	Code  string `json:"code"`
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

// ValidateCoupon checks a coupon against the caller's cart without consuming
// a usage slot. Rejections are 400 with a machine-readable reason.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" || len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "code and items are required")
		return
	}

	items, err := h.cartItems(r, req)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	applied, err := h.coupons.Validate(r.Context(), req.Code, items, identity(r).UserID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"coupon": map[string]any{
			"id":             applied.CouponID,
			"code":           applied.Code,
			"discountType":   string(applied.DiscountType),
			"discountValue":  applied.DiscountValue.InexactFloat64(),
			"discountAmount": applied.Amount.InexactFloat64(),
		},
	})
}

// cartItems resolves the requested product IDs against the catalog so the
// validator sees authoritative prices and categories.
func (h *Handler) cartItems(r *http.Request, req validateCouponRequest) ([]coupon.Item, error) {
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]coupon.Item, 0, len(req.Items))
	for _, line := range req.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, product.ErrNotFound
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, coupon.Item{
			ProductID: p.ID,
			Category:  p.Category,
			Price:     p.EffectivePrice(),
			Quantity:  qty,
		})
	}
	return items, nil
}

// couponResponse is the admin-facing JSON shape of a coupon.
type couponResponse struct {
	ID                string   `json:"id"`
	Code              string   `json:"code"`
	Description       string   `json:"description,omitempty"`
	DiscountType      string   `json:"discountType"`
	DiscountValue     float64  `json:"discountValue"`
	MinimumPurchase   *float64 `json:"minimumPurchase,omitempty"`
	MaximumDiscount   *float64 `json:"maximumDiscount,omitempty"`
	IsActive          bool     `json:"isActive"`
	StartsAt          string   `json:"startsAt"`
	EndsAt            *string  `json:"endsAt,omitempty"`
	MaxUsage          *int     `json:"maxUsage,omitempty"`
	MaxUsagePerUser   *int     `json:"maxUsagePerUser,omitempty"`
	TimesUsed         int      `json:"timesUsed"`
	IsSingleUse       bool     `json:"isSingleUse"`
	IsFirstTimeOnly   bool     `json:"isFirstTimeOnly"`
	ProductCategories []string `json:"productCategories,omitempty"`
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	resp := couponResponse{
		ID:                c.ID,
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue.InexactFloat64(),
		IsActive:          c.IsActive,
		StartsAt:          c.StartsAt.UTC().Format(timeLayout),
		TimesUsed:         c.TimesUsed,
		MaxUsage:          c.MaxUsage,
		MaxUsagePerUser:   c.MaxUsagePerUser,
		IsSingleUse:       c.IsSingleUse,
		IsFirstTimeOnly:   c.IsFirstTimeOnly,
		ProductCategories: c.ProductCategories,
	}
	if c.MinimumPurchase != nil {
		v := c.MinimumPurchase.InexactFloat64()
		resp.MinimumPurchase = &v
	}
	if c.MaximumDiscount != nil {
		v := c.MaximumDiscount.InexactFloat64()
		resp.MaximumDiscount = &v
	}
	if c.EndsAt != nil {
		s := c.EndsAt.UTC().Format(timeLayout)
		resp.EndsAt = &s
	}
	return resp
}

func toOptDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
