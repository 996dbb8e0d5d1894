package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is a cart line as seen by the evaluator.
type Item struct {
	ProductID  string
	VariantSKU string
	Category   string
	Price      decimal.Decimal
	Quantity   int
}

// Evaluation is the outcome of a successful coupon evaluation.
type Evaluation struct {
	Discount     decimal.Decimal
	FreeShipping bool
}

// Evaluate decides whether the coupon is usable for the given user and cart
// snapshot and computes its discount. It is a pure function over the supplied
// state: the caller fetches the coupon and the user's ledger entry, and
// commits usage separately once the coupon is irrevocably attached to an
// order.
//
// Gates run in a fixed order: validity window and caps, then user
// eligibility, then order eligibility. Failure is reported as an
// *EligibilityError carrying a single discriminated Reason.
//
// The discount is rounded half-up to two decimal places and never exceeds
// cartTotal; percentage discounts are additionally capped by MaxDiscount.
func Evaluate(c *Coupon, userID string, cartTotal decimal.Decimal, items []Item, usage *UserUsage, now time.Time) (Evaluation, error) {
	if !c.Active {
		return Evaluation{}, ineligible(ReasonNotActive, "coupon %s is no longer active", c.Code)
	}
	if !now.Before(c.ValidUntil) {
		return Evaluation{}, ineligible(ReasonExpired, "coupon %s has expired", c.Code)
	}
	if now.Before(c.ValidFrom) {
		return Evaluation{}, ineligible(ReasonNotYetValid, "coupon %s is not valid yet", c.Code)
	}
	if c.MaxUses > 0 && c.UsageCount >= c.MaxUses {
		return Evaluation{}, ineligible(ReasonGlobalLimitReached, "coupon %s has reached its usage limit", c.Code)
	}

	if len(c.ApplicableUsers) > 0 && !contains(c.ApplicableUsers, userID) {
		return Evaluation{}, ineligible(ReasonUserNotEligible, "coupon %s is not available for this account", c.Code)
	}
	if c.MaxUsesPerUser > 0 && usage != nil && usage.Used >= c.MaxUsesPerUser {
		return Evaluation{}, ineligible(ReasonUserLimitReached, "you have already used coupon %s the maximum number of times", c.Code)
	}

	if cartTotal.LessThan(c.MinOrderValue) {
		return Evaluation{}, ineligible(ReasonBelowMinimumOrderValue, "minimum order value of %s required", c.MinOrderValue.StringFixed(2))
	}
	if len(c.ApplicableProducts) > 0 || len(c.ApplicableCategories) > 0 {
		if !anyApplicable(c, items) {
			return Evaluation{}, ineligible(ReasonNoApplicableItems, "no items in the cart qualify for coupon %s", c.Code)
		}
	}
	for _, item := range items {
		if contains(c.ExcludedProducts, item.ProductID) {
			return Evaluation{}, ineligible(ReasonExcludedItemPresent, "coupon %s cannot be used with some items in the cart", c.Code)
		}
	}

	return Evaluation{
		Discount:     computeDiscount(c, cartTotal),
		FreeShipping: c.FreeShipping,
	}, nil
}

// computeDiscount applies the coupon's discount rule to the cart total.
// The result is clamped to cartTotal and rounded half-up to the smallest
// currency unit.
func computeDiscount(c *Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = cartTotal.Mul(c.Value).Div(hundred)
		amount = decimal.Min(amount, c.MaxDiscount)
	case DiscountFixed:
		amount = c.Value
	}
	amount = decimal.Min(amount, cartTotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

func anyApplicable(c *Coupon, items []Item) bool {
	for _, item := range items {
		if contains(c.ApplicableProducts, item.ProductID) {
			return true
		}
		if contains(c.ApplicableCategories, item.Category) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
