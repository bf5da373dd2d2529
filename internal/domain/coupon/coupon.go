package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart subtotal,
	// optionally capped by MaximumDiscount.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixedAmount applies a fixed monetary discount capped at the
	// cart subtotal.
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// RejectionReason identifies why a coupon was refused for a cart.
type RejectionReason string

const (
	ReasonInvalidCode       RejectionReason = "INVALID_CODE"
	ReasonInactive          RejectionReason = "INACTIVE"
	ReasonNotYetStarted     RejectionReason = "NOT_YET_STARTED"
	ReasonExpired           RejectionReason = "EXPIRED"
	ReasonBelowMinimum      RejectionReason = "BELOW_MINIMUM"
	ReasonUsageLimitReached RejectionReason = "USAGE_LIMIT_REACHED"
	ReasonUserLimitReached  RejectionReason = "USER_LIMIT_REACHED"
	ReasonNotFirstOrder     RejectionReason = "NOT_FIRST_ORDER"
	ReasonNotApplicable     RejectionReason = "NOT_APPLICABLE"
)

// RejectionError carries the machine-readable reason a coupon was refused.
// Handlers map it to a 400 response with the reason code intact.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonInvalidCode:
		return "invalid coupon code"
	case ReasonInactive:
		return "coupon is not active"
	case ReasonNotYetStarted:
		return "coupon is not valid yet"
	case ReasonExpired:
		return "coupon has expired"
	case ReasonBelowMinimum:
		return "cart subtotal is below the coupon minimum"
	case ReasonUsageLimitReached:
		return "coupon usage limit reached"
	case ReasonUserLimitReached:
		return "coupon already used the maximum number of times"
	case ReasonNotFirstOrder:
		return "coupon is valid for first orders only"
	case ReasonNotApplicable:
		return "coupon does not apply to any item in the cart"
	default:
		return fmt.Sprintf("coupon rejected: %s", string(e.Reason))
	}
}

// Rejected builds a RejectionError for the given reason.
func Rejected(reason RejectionReason) error {
	return &RejectionError{Reason: reason}
}

// Coupon defines a discount code and its eligibility constraints.
type Coupon struct {
	ID              string
	Code            string
	Description     string
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	MinimumPurchase *decimal.Decimal
	// MaximumDiscount caps the computed amount. Percentage coupons only.
	MaximumDiscount *decimal.Decimal
	IsActive        bool
	StartsAt        time.Time
	EndsAt          *time.Time
	MaxUsage        *int
	MaxUsagePerUser *int
	TimesUsed       int
	// IsSingleUse restricts the coupon to one redemption per user.
	IsSingleUse     bool
	IsFirstTimeOnly bool
	// ProductCategories restricts the coupon to carts containing at least
	// one item from the listed categories. Empty means unrestricted.
	ProductCategories []string
	CreatedAt         time.Time
}

// Item represents a cart line item for eligibility and discount purposes.
type Item struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// Applied describes a successfully validated discount.
type Applied struct {
	CouponID      string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Amount        decimal.Decimal
}

// Repository provides coupon persistence. FindByCode matches the code
// exactly and case-sensitively.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	// CountUsageByUser returns how many times the user has redeemed the coupon.
	CountUsageByUser(ctx context.Context, couponID, userID string) (int, error)
	// Redeem consumes one usage slot atomically: the times_used increment and
	// the max_usage guard are a single conditional update, and the usage row
	// is written in the same transaction. Returns ErrRedeemExhausted when no
	// slot is left.
	Redeem(ctx context.Context, couponID, userID, orderID string) error
}

// ErrNotFound is returned when a coupon does not exist.
var ErrNotFound = &RejectionError{Reason: ReasonInvalidCode}

// ErrRedeemExhausted is returned by Redeem when the usage guard rejects the
// increment, i.e. a concurrent checkout consumed the last slot.
var ErrRedeemExhausted = &RejectionError{Reason: ReasonUsageLimitReached}
