package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vendora/commerce-core/internal/domain/coupon"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testItems() []LineItem {
	return []LineItem{
		{
			ProductID:      "p1",
			UnitPrice:      money("400.00"),
			Quantity:       2,
			ShippingCharge: money("40.00"),
		},
		{
			ProductID:      "p2",
			UnitPrice:      money("200.00"),
			Quantity:       1,
			ShippingCharge: money("0.00"),
		},
	}
}

func TestComputeTotals_NoCoupon(t *testing.T) {
	got := ComputeTotals(testItems(), nil)

	assert.True(t, money("1000.00").Equal(got.Subtotal))
	assert.True(t, decimal.Zero.Equal(got.Discount))
	assert.True(t, money("40.00").Equal(got.Shipping))
	assert.True(t, money("1040.00").Equal(got.Total))
}

func TestComputeTotals_WithCoupon(t *testing.T) {
	applied := &CouponSnapshot{
		Code:         "SAVE20",
		DiscountType: coupon.DiscountPercentage,
		Discount:     money("200.00"),
		AppliedAt:    time.Now(),
	}

	got := ComputeTotals(testItems(), applied)

	assert.True(t, money("1000.00").Equal(got.Subtotal))
	assert.True(t, money("200.00").Equal(got.Discount))
	assert.True(t, money("840.00").Equal(got.Total))
}

func TestComputeTotals_FreeShippingCoupon(t *testing.T) {
	applied := &CouponSnapshot{
		Code:         "SHIPFREE",
		DiscountType: coupon.DiscountFixed,
		Discount:     money("50.00"),
		FreeShipping: true,
	}

	got := ComputeTotals(testItems(), applied)

	assert.True(t, decimal.Zero.Equal(got.Shipping))
	assert.True(t, money("950.00").Equal(got.Total))
}

func TestComputeTotals_DiscountClampedToSubtotal(t *testing.T) {
	items := []LineItem{{ProductID: "p1", UnitPrice: money("30.00"), Quantity: 1}}
	applied := &CouponSnapshot{Code: "FLAT50", Discount: money("50.00")}

	got := ComputeTotals(items, applied)

	assert.True(t, money("30.00").Equal(got.Discount))
	assert.True(t, decimal.Zero.Equal(got.Total))
	assert.False(t, got.Total.IsNegative())
}

func TestComputeTotals_Idempotent(t *testing.T) {
	items := testItems()
	applied := &CouponSnapshot{Code: "SAVE20", Discount: money("200.00")}

	first := ComputeTotals(items, applied)
	second := ComputeTotals(items, applied)

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Discount.Equal(second.Discount))
	assert.True(t, first.Shipping.Equal(second.Shipping))
	assert.True(t, first.Total.Equal(second.Total))
}

func TestComputeTotals_ApplyRemoveRoundTrip(t *testing.T) {
	items := testItems()

	before := ComputeTotals(items, nil)
	applied := ComputeTotals(items, &CouponSnapshot{Code: "SAVE20", Discount: money("200.00")})
	after := ComputeTotals(items, nil)

	assert.False(t, applied.Total.Equal(before.Total))
	assert.True(t, before.Total.Equal(after.Total))
	assert.True(t, before.Subtotal.Equal(after.Subtotal))
	assert.True(t, before.Shipping.Equal(after.Shipping))
}

func TestComputeTotals_InvariantHolds(t *testing.T) {
	applied := &CouponSnapshot{Code: "SAVE20", Discount: money("123.45")}
	got := ComputeTotals(testItems(), applied)

	recomputed := got.Subtotal.Sub(got.Discount).Add(got.Shipping)
	assert.True(t, recomputed.Equal(got.Total))
	assert.True(t, got.Discount.LessThanOrEqual(got.Subtotal))
}

func TestFormatNumber(t *testing.T) {
	day := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, "ORD-20260828-0001", FormatNumber("ORD", day, 1))
	assert.Equal(t, "ORD-20260828-0042", FormatNumber("ORD", day, 42))
	assert.Equal(t, "VND-20260828-12345", FormatNumber("VND", day, 12345))
}
