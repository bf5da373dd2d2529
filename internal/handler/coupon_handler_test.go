package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/storefront/internal/domain/coupon"
)

func TestValidateCoupon(t *testing.T) {
	validBody := map[string]any{
		"code": "SAVE20",
		"items": []map[string]any{
			{"productId": "p1", "quantity": 2},
		},
	}

	t.Run("valid coupon returns discount", func(t *testing.T) {
		f := newFixture()
		f.validator.applied = &coupon.Applied{
			CouponID:      "c1",
			Code:          "SAVE20",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: dec("20"),
			Amount:        dec("200"),
		}

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, validBody)

		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		c, ok := body["coupon"].(map[string]any)
		require.True(t, ok, "response should contain a coupon object")
		assert.Equal(t, "SAVE20", c["code"])
		assert.Equal(t, "PERCENTAGE", c["discountType"])
		assert.InDelta(t, 200, c["discountAmount"], 0.001)

		// The validator saw catalog prices and the caller's identity, not
		// client-supplied values.
		assert.Equal(t, testUserID, f.validator.gotUserID)
		require.Len(t, f.validator.gotItems, 1)
		assert.True(t, dec("500").Equal(f.validator.gotItems[0].Price))
		assert.Equal(t, "MEN", f.validator.gotItems[0].Category)
	})

	t.Run("rejection maps to 400 with reason", func(t *testing.T) {
		f := newFixture()
		f.validator.err = coupon.Rejected(coupon.ReasonExpired)

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, validBody)

		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "EXPIRED", body["reason"])
		assert.Equal(t, "coupon has expired", body["error"])
	})

	t.Run("unknown code maps to INVALID_CODE", func(t *testing.T) {
		f := newFixture()
		f.validator.err = coupon.ErrNotFound

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, validBody)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_CODE", decodeBody(t, w)["reason"])
	})

	t.Run("unknown product in cart is 404", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, map[string]any{
			"code": "SAVE20",
			"items": []map[string]any{
				{"productId": "ghost", "quantity": 1},
			},
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing code or items", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, map[string]any{"code": "X"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(http.MethodPost, "/coupons/validate", userAPIKey, map[string]any{
			"items": []map[string]any{{"productId": "p1", "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodPost, "/coupons/validate", userAPIKey, map[string]any{
			"code":     "SAVE20",
			"items":    []map[string]any{{"productId": "p1", "quantity": 1}},
			"discount": 9999,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
