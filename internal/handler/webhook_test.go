package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/storefront/internal/domain/order"
	"github.com/threadline/storefront/internal/payment"
)

func postWebhook(f *fixture, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(`{"id":"evt_1"}`))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook(t *testing.T) {
	t.Run("no API key required, signature is the credential", func(t *testing.T) {
		f := newFixture()
		f.gateway.event = &payment.Event{Type: "charge.updated"}

		w := postWebhook(f, "t=1,v1=sig")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "t=1,v1=sig", f.gateway.gotSig)
	})

	t.Run("invalid signature changes nothing", func(t *testing.T) {
		f := newFixture()
		f.gateway.verifyErr = errors.Wrap(payment.ErrBadSignature, "verify")

		w := postWebhook(f, "t=1,v1=forged")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, f.orders.payStatus)
	})

	t.Run("payment succeeded confirms the order", func(t *testing.T) {
		f := newFixture()
		f.orders.byID = map[string]order.Order{
			"o1": {
				ID: "o1", UserID: testUserID,
				Status: order.StatusPending, PaymentStatus: order.PaymentPending,
				Items: []order.Item{{ProductID: "p1", Quantity: 2}},
			},
		}
		f.gateway.event = &payment.Event{
			Type:     payment.EventSucceeded,
			IntentID: "pi_1",
			OrderID:  "o1",
		}

		w := postWebhook(f, "t=1,v1=sig")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.PaymentPaid, f.orders.payStatus)
		assert.Equal(t, "pi_1", f.orders.payRef)
		assert.Equal(t, order.StatusProcessing, f.orders.statusSet)
		assert.Equal(t, map[string]int{"p1": 2}, f.products.sales)
	})

	t.Run("payment failed records the failure", func(t *testing.T) {
		f := newFixture()
		f.orders.byID = map[string]order.Order{
			"o1": {ID: "o1", Status: order.StatusPending, PaymentStatus: order.PaymentPending},
		}
		f.gateway.event = &payment.Event{
			Type:     payment.EventFailed,
			IntentID: "pi_1",
			OrderID:  "o1",
		}

		w := postWebhook(f, "t=1,v1=sig")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.PaymentFailed, f.orders.payStatus)
		assert.Empty(t, f.orders.statusSet, "fulfilment status untouched on failure")
	})

	t.Run("succeeded event without order metadata is rejected", func(t *testing.T) {
		f := newFixture()
		f.gateway.event = &payment.Event{Type: payment.EventSucceeded, IntentID: "pi_1"}

		w := postWebhook(f, "t=1,v1=sig")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unhandled event types are acknowledged", func(t *testing.T) {
		f := newFixture()
		f.gateway.event = &payment.Event{Type: "customer.created"}

		w := postWebhook(f, "t=1,v1=sig")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, f.orders.payStatus)
	})
}
