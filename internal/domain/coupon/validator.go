package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// PurchaseHistory exposes the slice of order history the validator needs for
// per-user and first-order checks.
type PurchaseHistory interface {
	CountOrdersByUser(ctx context.Context, userID string) (int, error)
}

// Validator validates a coupon code against a cart and returns the computed
// discount. Validation is side-effect free: usage is consumed only at
// payment confirmation, so inspecting a code never burns a slot.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item, userID string) (*Applied, error)
}

// RepoValidator implements Validator against a coupon Repository and the
// caller's purchase history.
type RepoValidator struct {
	repo    Repository
	history PurchaseHistory
	now     func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given repository
// and purchase history.
func NewRepoValidator(repo Repository, history PurchaseHistory) *RepoValidator {
	return &RepoValidator{repo: repo, history: history, now: time.Now}
}

// Validate runs the eligibility sequence, short-circuiting on the first
// failure, then computes the discount amount:
//
//	lookup, active, time window, minimum purchase, global usage cap,
//	per-user cap, first-order-only, category restriction.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item, userID string) (*Applied, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			return nil, err
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive {
		return nil, Rejected(ReasonInactive)
	}

	now := v.now()
	if now.Before(c.StartsAt) {
		return nil, Rejected(ReasonNotYetStarted)
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return nil, Rejected(ReasonExpired)
	}

	subtotal := Subtotal(items)
	if c.MinimumPurchase != nil && subtotal.LessThan(*c.MinimumPurchase) {
		return nil, Rejected(ReasonBelowMinimum)
	}

	if c.MaxUsage != nil && c.TimesUsed >= *c.MaxUsage {
		return nil, Rejected(ReasonUsageLimitReached)
	}

	if limit := c.perUserLimit(); limit > 0 {
		used, err := v.repo.CountUsageByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= limit {
			return nil, Rejected(ReasonUserLimitReached)
		}
	}

	if c.IsFirstTimeOnly {
		orders, err := v.history.CountOrdersByUser(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count orders")
		}
		if orders > 0 {
			return nil, Rejected(ReasonNotFirstOrder)
		}
	}

	if len(c.ProductCategories) > 0 && !categoriesIntersect(c.ProductCategories, items) {
		return nil, Rejected(ReasonNotApplicable)
	}

	amount, err := ComputeDiscount(c, subtotal)
	if err != nil {
		return nil, err
	}

	return &Applied{
		CouponID:      c.ID,
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		Amount:        amount,
	}, nil
}

// perUserLimit folds IsSingleUse into the per-user cap: single-use coupons
// behave as MaxUsagePerUser = 1, and the stricter of the two wins.
func (c *Coupon) perUserLimit() int {
	limit := 0
	if c.MaxUsagePerUser != nil {
		limit = *c.MaxUsagePerUser
	}
	if c.IsSingleUse && (limit == 0 || limit > 1) {
		limit = 1
	}
	return limit
}

func categoriesIntersect(categories []string, items []Item) bool {
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}
	for _, item := range items {
		if _, ok := allowed[item.Category]; ok {
			return true
		}
	}
	return false
}
