package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestSubtotal(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  decimal.Decimal
	}{
		{
			name: "single item",
			items: []Item{
				{ProductID: "p1", Price: dec("100"), Quantity: 1},
			},
			want: dec("100"),
		},
		{
			name: "quantity multiplies price",
			items: []Item{
				{ProductID: "p1", Price: dec("49.99"), Quantity: 3},
			},
			want: dec("149.97"),
		},
		{
			name: "multiple lines sum",
			items: []Item{
				{ProductID: "p1", Price: dec("100"), Quantity: 2},
				{ProductID: "p2", Price: dec("250.50"), Quantity: 1},
			},
			want: dec("450.50"),
		},
		{
			name:  "empty cart is zero",
			items: nil,
			want:  decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subtotal(tt.items)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *Coupon
		subtotal decimal.Decimal
		want     decimal.Decimal
		wantErr  bool
	}{
		{
			name: "percentage of subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: dec("20"),
			},
			subtotal: dec("1000"),
			want:     dec("200"),
		},
		{
			name: "percentage capped by maximum discount",
			coupon: &Coupon{
				DiscountType:    DiscountPercentage,
				DiscountValue:   dec("20"),
				MaximumDiscount: decPtr("150"),
			},
			subtotal: dec("1000"),
			want:     dec("150"),
		},
		{
			name: "percentage under cap unaffected",
			coupon: &Coupon{
				DiscountType:    DiscountPercentage,
				DiscountValue:   dec("10"),
				MaximumDiscount: decPtr("150"),
			},
			subtotal: dec("1000"),
			want:     dec("100"),
		},
		{
			name: "percentage result rounds to 2 places",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: dec("15"),
			},
			subtotal: dec("99.99"),
			want:     dec("15.00"),
		},
		{
			name: "fixed amount below subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountFixedAmount,
				DiscountValue: dec("50"),
			},
			subtotal: dec("1000"),
			want:     dec("50"),
		},
		{
			name: "fixed amount clamped to subtotal",
			coupon: &Coupon{
				DiscountType:  DiscountFixedAmount,
				DiscountValue: dec("500"),
			},
			subtotal: dec("200"),
			want:     dec("200"),
		},
		{
			name: "hundred percent empties the cart but no further",
			coupon: &Coupon{
				DiscountType:  DiscountPercentage,
				DiscountValue: dec("100"),
			},
			subtotal: dec("333.33"),
			want:     dec("333.33"),
		},
		{
			name: "zero subtotal yields zero discount",
			coupon: &Coupon{
				DiscountType:  DiscountFixedAmount,
				DiscountValue: dec("50"),
			},
			subtotal: decimal.Zero,
			want:     decimal.Zero,
		},
		{
			name: "unknown discount type errors",
			coupon: &Coupon{
				DiscountType:  DiscountType("BOGO"),
				DiscountValue: dec("1"),
			},
			subtotal: dec("100"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeDiscount(tt.coupon, tt.subtotal)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}
