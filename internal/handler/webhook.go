package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/threadline/storefront/internal/payment"
)

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 64 << 10

// PaymentWebhook consumes gateway notifications. Every payload must pass
// signature verification before it can touch order state; unverified
// requests get 400 and change nothing.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read payload")
		return
	}

	event, err := h.gateway.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		lg.Warn("webhook rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	switch event.Type {
	case payment.EventSucceeded:
		if event.OrderID == "" {
			lg.Warn("payment event without order metadata", zap.String("intent_id", event.IntentID))
			respondError(w, http.StatusBadRequest, "missing order reference")
			return
		}
		if err := h.orders.ConfirmPayment(r.Context(), event.OrderID, event.IntentID); err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		lg.Info("payment confirmed",
			zap.String("order_id", event.OrderID),
			zap.String("intent_id", event.IntentID),
		)

	case payment.EventFailed:
		if event.OrderID == "" {
			respondError(w, http.StatusBadRequest, "missing order reference")
			return
		}
		if err := h.orders.FailPayment(r.Context(), event.OrderID, event.IntentID); err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		lg.Info("payment failed",
			zap.String("order_id", event.OrderID),
			zap.String("intent_id", event.IntentID),
		)

	default:
		// Other event types are acknowledged and ignored.
		lg.Debug("unhandled webhook event", zap.String("type", event.Type))
	}

	w.WriteHeader(http.StatusOK)
}
