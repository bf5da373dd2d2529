package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// ComputeDiscount calculates the discount amount for the coupon against the
// given subtotal. The result is rounded to 2 decimal places, never negative,
// and never exceeds the subtotal: the fixed-amount clamp is deliberate (the
// original system let fixed discounts push totals negative).
func ComputeDiscount(c *Coupon, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal

	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaximumDiscount != nil {
			amount = decimal.Min(amount, *c.MaximumDiscount)
		}
	case DiscountFixedAmount:
		amount = decimal.Min(c.DiscountValue, subtotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
