// Package payment integrates the hosted payment gateway (Stripe). Card and
// UPI transactions happen outside this system's trust boundary; the service
// only creates payment intents and consumes signed webhook events.
package payment

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/threadline/storefront/internal/domain/order"
)

var _ order.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway creates payment intents and verifies webhook signatures.
type StripeGateway struct {
	publishableKey string
	webhookSecret  string
}

// NewStripeGateway configures the global Stripe client and returns a gateway.
func NewStripeGateway(secretKey, publishableKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		publishableKey: publishableKey,
		webhookSecret:  webhookSecret,
	}
}

// PublishableKey returns the client-side key used to initialize the payment
// widget.
func (g *StripeGateway) PublishableKey() string {
	return g.publishableKey
}

// CreateIntent creates a payment intent for the given amount in minor units.
// The order and user IDs travel in the intent metadata so the webhook can
// correlate the confirmation back to the order.
func (g *StripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*order.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: metadata,
		},
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create stripe payment intent")
	}

	return &order.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       amountMinor,
		Currency:     currency,
	}, nil
}

// Event is a verified, normalized webhook notification.
type Event struct {
	// Type is the raw gateway event type, e.g. "payment_intent.succeeded".
	Type     string
	IntentID string
	OrderID  string
	UserID   string
}

// EventSucceeded and EventFailed are the event types the service acts on.
const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
)

// ErrBadSignature is returned when the webhook payload fails signature
// verification. Unverified payloads must never reach order state.
var ErrBadSignature = errors.New("webhook signature verification failed")

// VerifyEvent checks the webhook signature and extracts the order reference
// from the payment intent metadata.
func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, errors.Wrap(ErrBadSignature, err.Error())
	}

	out := &Event{Type: string(ev.Type)}

	switch out.Type {
	case EventSucceeded, EventFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, errors.Wrap(err, "unmarshal payment intent")
		}
		out.IntentID = pi.ID
		out.OrderID = pi.Metadata["order_id"]
		out.UserID = pi.Metadata["user_id"]
	}

	return out, nil
}
