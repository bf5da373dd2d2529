package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrAddressNotFound = fmt.Errorf("address not found")
)

// ProductNotFoundError indicates a requested product does not exist or is
// not available for sale.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds inventory.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s has only %d in stock", e.ProductID, e.Available)
}

// InvalidTransitionError indicates a disallowed status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// PaymentIntent is the gateway handle the client needs to complete payment.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	// Amount is in the currency's minor unit.
	Amount   int64
	Currency string
}

// PaymentGateway creates payment intents at the hosted payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*PaymentIntent, error)
}

// AddressDirectory verifies address ownership at checkout.
type AddressDirectory interface {
	AddressBelongsTo(ctx context.Context, addressID, userID string) (bool, error)
}

// Pricing holds the checkout pricing policy.
type Pricing struct {
	// TaxRate is applied to the pre-discount subtotal. The original system
	// taxed before discounting; that ordering is preserved.
	TaxRate decimal.Decimal
	// ShippingFlat is the flat shipping charge per order.
	ShippingFlat decimal.Decimal
	Currency     string
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID     string
	AddressID  string
	Items      []LineRequest
	CouponCode string
}

// LineRequest is one requested cart line.
type LineRequest struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Payment *PaymentIntent
}

// Service encapsulates checkout and fulfilment business logic.
type Service struct {
	products  product.Repository
	coupons   coupon.Validator
	redeemer  coupon.Repository
	orders    Repository
	addresses AddressDirectory
	gateway   PaymentGateway
	pricing   Pricing
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	redeemer coupon.Repository,
	orders Repository,
	addresses AddressDirectory,
	gateway PaymentGateway,
	pricing Pricing,
) *Service {
	return &Service{
		products:  products,
		coupons:   coupons,
		redeemer:  redeemer,
		orders:    orders,
		addresses: addresses,
		gateway:   gateway,
		pricing:   pricing,
	}
}

// PlaceOrder validates the cart, computes the full pricing breakdown,
// persists the order as PENDING, and obtains a payment intent from the
// gateway. Coupon usage is NOT consumed here; that happens at payment
// confirmation so that inspecting a code never burns a slot.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ok, err := s.addresses.AddressBelongsTo(ctx, req.AddressID, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "check address")
	}
	if !ok {
		return nil, ErrAddressNotFound
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Verify availability and build the denormalized item snapshot.
	items := make([]Item, len(req.Items))
	couponItems := make([]coupon.Item, len(req.Items))
	subtotal := decimal.Zero
	for i, line := range req.Items {
		p, found := productMap[line.ProductID]
		if !found || !p.IsActive {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if p.Inventory < line.Quantity {
			return nil, &InsufficientStockError{ProductID: line.ProductID, Available: p.Inventory}
		}

		price := p.EffectivePrice()
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     price,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
		}
		couponItems[i] = coupon.Item{
			ProductID: p.ID,
			Category:  p.Category,
			Price:     price,
			Quantity:  line.Quantity,
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	// Tax applies to the pre-discount subtotal.
	tax := subtotal.Mul(s.pricing.TaxRate).Round(2)
	shipping := s.pricing.ShippingFlat

	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		applied, err := s.coupons.Validate(ctx, req.CouponCode, couponItems, req.UserID)
		if err != nil {
			return nil, err
		}
		discount = applied.Amount
		couponCode = applied.Code
	}

	// Total = subtotal + tax + shipping - discount, floored at zero and
	// rounded to 2 decimal places.
	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		Items:         items,
		Subtotal:      subtotal.Round(2),
		Tax:           tax,
		Shipping:      shipping.Round(2),
		Discount:      discount.Round(2),
		CouponCode:    couponCode,
		Total:         total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
	}

	// The order is persisted before the intent exists, so a webhook for the
	// intent always finds its order. If intent creation fails the order stays
	// PENDING with no payment ref and the customer can retry checkout; the
	// reverse ordering would leave a live, payable intent pointing at an
	// order that was never stored.
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	intent, err := s.gateway.CreateIntent(ctx, toMinorUnits(total), s.pricing.Currency, map[string]string{
		"order_id": o.ID,
		"user_id":  o.UserID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}

	o.PaymentRef = intent.ID
	if err := s.orders.SetPayment(ctx, o.ID, PaymentPending, intent.ID); err != nil {
		return nil, errors.Wrap(err, "attach payment ref")
	}

	return &PlaceOrderResult{Order: o, Payment: intent}, nil
}

// ConfirmPayment marks an order as paid after the gateway confirms the
// payment. It consumes the coupon usage slot, records the sale against
// inventory, and moves the order to PROCESSING. The paid marker is written
// last: a failure in any earlier step leaves the order unpaid in storage, so
// the gateway's webhook retry re-runs the unfinished steps instead of
// short-circuiting on the idempotency check. Coupon redemption is keyed by
// order, so a retry cannot burn a second usage slot.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentRef string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil
	}

	if o.CouponCode != "" {
		if err := s.redeemCoupon(ctx, o); err != nil {
			return err
		}
	}

	quantities := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		quantities[item.ProductID] += item.Quantity
	}
	if err := s.products.RecordSale(ctx, quantities); err != nil {
		return errors.Wrap(err, "record sale")
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, StatusProcessing); err != nil {
		return errors.Wrap(err, "update order status")
	}

	if err := s.orders.SetPayment(ctx, o.ID, PaymentPaid, paymentRef); err != nil {
		return errors.Wrap(err, "set payment status")
	}
	return nil
}

// redeemCoupon consumes a usage slot for the order's coupon. Exhaustion at
// this point means a concurrent checkout won the last slot after our
// validation passed; the payment is already captured, so the discount is
// honored and the over-redemption is logged rather than failing the order.
func (s *Service) redeemCoupon(ctx context.Context, o *Order) error {
	c, err := s.redeemer.FindByCode(ctx, o.CouponCode)
	if err != nil {
		var rej *coupon.RejectionError
		if errors.As(err, &rej) {
			zctx.From(ctx).Warn("coupon disappeared before redemption",
				zap.String("order_id", o.ID),
				zap.String("coupon_code", o.CouponCode),
			)
			return nil
		}
		return errors.Wrap(err, "lookup coupon for redemption")
	}

	err = s.redeemer.Redeem(ctx, c.ID, o.UserID, o.ID)
	if errors.Is(err, coupon.ErrRedeemExhausted) {
		zctx.From(ctx).Warn("coupon usage exhausted at redemption",
			zap.String("order_id", o.ID),
			zap.String("coupon_code", o.CouponCode),
		)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "redeem coupon")
	}
	return nil
}

// FailPayment records a failed payment attempt. The order stays PENDING so
// the customer can retry.
func (s *Service) FailPayment(ctx context.Context, orderID, paymentRef string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil
	}
	return s.orders.SetPayment(ctx, o.ID, PaymentFailed, paymentRef)
}

// UpdateStatus moves an order through the fulfilment state machine,
// rejecting transitions the machine does not allow.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, to); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = to
	return o, nil
}

// toMinorUnits converts a decimal amount to the currency's minor unit.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
