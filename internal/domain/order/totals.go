package order

import "github.com/shopspring/decimal"

// Totals is the financial breakdown derived from an order's line items and
// its applied coupon.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives subtotal, discount, shipping, and total from line
// items and an optional applied coupon. It is the single source of truth for
// order money: every code path that changes lines or the coupon re-runs it.
//
// Subtotal is the sum of unit price times quantity per line. Discount comes
// from the coupon snapshot and never exceeds the subtotal. Shipping is the
// sum of per-line shipping charges, or zero entirely when the coupon grants
// free shipping. Total = subtotal - discount + shipping, floored at zero.
func ComputeTotals(items []LineItem, applied *CouponSnapshot) Totals {
	subtotal := decimal.Zero
	shipping := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
		shipping = shipping.Add(item.ShippingCharge)
	}

	discount := decimal.Zero
	if applied != nil {
		discount = decimal.Min(applied.Discount, subtotal)
		if applied.FreeShipping {
			shipping = decimal.Zero
		}
	}

	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Shipping: shipping.Round(2),
		Total:    total.Round(2),
	}
}

// applyTotals writes a freshly computed breakdown onto the order.
func (o *Order) applyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.Discount = t.Discount
	o.ShippingCharge = t.Shipping
	o.Total = t.Total
}
