package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoupon(mutate func(*Coupon)) *Coupon {
	fixedNow := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c := &Coupon{
		ID:             "c-1",
		Code:           "SAVE20",
		DiscountType:   DiscountPercentage,
		Value:          decimal.NewFromInt(20),
		MaxDiscount:    decimal.NewFromInt(200),
		MinOrderValue:  decimal.NewFromInt(500),
		MaxUsesPerUser: 1,
		ValidFrom:      fixedNow.Add(-24 * time.Hour),
		ValidUntil:     fixedNow.Add(24 * time.Hour),
		Active:         true,
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func cartItems(items ...Item) []Item { return items }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	items := cartItems(
		Item{ProductID: "p1", Category: "books", Price: decimal.NewFromInt(400), Quantity: 2},
		Item{ProductID: "p2", Category: "toys", Price: decimal.NewFromInt(200), Quantity: 1},
	)

	tests := []struct {
		name         string
		coupon       *Coupon
		userID       string
		cartTotal    decimal.Decimal
		items        []Item
		usage        *UserUsage
		wantDiscount decimal.Decimal
		wantFreeShip bool
		wantReason   Reason
	}{
		{
			name:         "percentage capped by max discount",
			coupon:       testCoupon(nil),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			wantDiscount: decimal.NewFromInt(200),
		},
		{
			name:       "below minimum order value",
			coupon:     testCoupon(nil),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(400),
			items:      items,
			wantReason: ReasonBelowMinimumOrderValue,
		},
		{
			name: "fixed discount capped at cart total",
			coupon: testCoupon(func(c *Coupon) {
				c.Code = "FLAT50"
				c.DiscountType = DiscountFixed
				c.Value = decimal.NewFromInt(50)
				c.MaxDiscount = decimal.Zero
				c.MinOrderValue = decimal.Zero
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(30),
			items:        items,
			wantDiscount: decimal.NewFromInt(30),
		},
		{
			name: "percentage below cap uses computed amount",
			coupon: testCoupon(func(c *Coupon) {
				c.MaxDiscount = decimal.NewFromInt(500)
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			wantDiscount: decimal.NewFromInt(200),
		},
		{
			name: "discount rounded half up",
			coupon: testCoupon(func(c *Coupon) {
				c.Value = decimal.NewFromInt(15)
				c.MaxDiscount = decimal.NewFromInt(10000)
				c.MinOrderValue = decimal.Zero
			}),
			userID:       "u1",
			cartTotal:    decimal.RequireFromString("666.35"),
			items:        items,
			wantDiscount: decimal.RequireFromString("99.95"), // 99.9525 rounds down; 99.955 would round up
		},
		{
			name:       "inactive coupon",
			coupon:     testCoupon(func(c *Coupon) { c.Active = false }),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonNotActive,
		},
		{
			name: "expired coupon",
			coupon: testCoupon(func(c *Coupon) {
				c.ValidFrom = now.Add(-48 * time.Hour)
				c.ValidUntil = now.Add(-24 * time.Hour)
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonExpired,
		},
		{
			name: "not yet valid",
			coupon: testCoupon(func(c *Coupon) {
				c.ValidFrom = now.Add(24 * time.Hour)
				c.ValidUntil = now.Add(48 * time.Hour)
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonNotYetValid,
		},
		{
			name: "global limit reached",
			coupon: testCoupon(func(c *Coupon) {
				c.MaxUses = 100
				c.UsageCount = 100
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonGlobalLimitReached,
		},
		{
			name: "user not on allow list",
			coupon: testCoupon(func(c *Coupon) {
				c.ApplicableUsers = []string{"u2", "u3"}
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonUserNotEligible,
		},
		{
			name:       "user limit reached",
			coupon:     testCoupon(nil),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			usage:      &UserUsage{UserID: "u1", Used: 1},
			wantReason: ReasonUserLimitReached,
		},
		{
			name: "user under limit succeeds",
			coupon: testCoupon(func(c *Coupon) {
				c.MaxUsesPerUser = 3
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			usage:        &UserUsage{UserID: "u1", Used: 2},
			wantDiscount: decimal.NewFromInt(200),
		},
		{
			name: "no applicable items",
			coupon: testCoupon(func(c *Coupon) {
				c.ApplicableCategories = []string{"electronics"}
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonNoApplicableItems,
		},
		{
			name: "applicable category match succeeds",
			coupon: testCoupon(func(c *Coupon) {
				c.ApplicableCategories = []string{"toys"}
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			wantDiscount: decimal.NewFromInt(200),
		},
		{
			name: "applicable product match succeeds",
			coupon: testCoupon(func(c *Coupon) {
				c.ApplicableProducts = []string{"p2"}
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			wantDiscount: decimal.NewFromInt(200),
		},
		{
			name: "excluded item present",
			coupon: testCoupon(func(c *Coupon) {
				c.ExcludedProducts = []string{"p2"}
			}),
			userID:     "u1",
			cartTotal:  decimal.NewFromInt(1000),
			items:      items,
			wantReason: ReasonExcludedItemPresent,
		},
		{
			name: "free shipping flag carried through",
			coupon: testCoupon(func(c *Coupon) {
				c.FreeShipping = true
			}),
			userID:       "u1",
			cartTotal:    decimal.NewFromInt(1000),
			items:        items,
			wantDiscount: decimal.NewFromInt(200),
			wantFreeShip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.coupon, tt.userID, tt.cartTotal, tt.items, tt.usage, now)

			if tt.wantReason != "" {
				var eligErr *EligibilityError
				require.ErrorAs(t, err, &eligErr)
				assert.Equal(t, tt.wantReason, eligErr.Reason)
				assert.NotEmpty(t, eligErr.Message)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantDiscount.Equal(got.Discount),
				"expected discount %s, got %s", tt.wantDiscount, got.Discount)
			assert.Equal(t, tt.wantFreeShip, got.FreeShipping)
			assert.True(t, got.Discount.LessThanOrEqual(tt.cartTotal))
		})
	}
}

func TestEvaluate_DiscountNeverExceedsCartTotal(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c := testCoupon(func(c *Coupon) {
		c.DiscountType = DiscountFixed
		c.Value = decimal.NewFromInt(500)
		c.MinOrderValue = decimal.Zero
	})

	for _, total := range []string{"0", "1", "499.99", "500", "12345.67"} {
		cartTotal := decimal.RequireFromString(total)
		got, err := Evaluate(c, "u1", cartTotal, nil, nil, now)
		require.NoError(t, err)
		assert.True(t, got.Discount.LessThanOrEqual(cartTotal),
			"discount %s exceeds cart total %s", got.Discount, cartTotal)
	}
}
