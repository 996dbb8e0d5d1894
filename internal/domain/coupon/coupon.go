package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount, capped by
	// the coupon's MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the cart total.
	DiscountFixed DiscountType = "fixed"
)

// Status is the derived lifecycle state of a coupon at a point in time.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusUpcoming Status = "upcoming"
)

var (
	// ErrNotFound is returned when no coupon exists for a given code.
	ErrNotFound = errors.New("coupon not found")
	// ErrGlobalLimitReached is returned by a usage commit when the coupon's
	// global cap is exhausted at increment time.
	ErrGlobalLimitReached = errors.New("coupon usage limit reached")
	// ErrUserLimitReached is returned by a usage commit when the requesting
	// user's cap is exhausted at increment time.
	ErrUserLimitReached = errors.New("coupon usage limit reached for user")
)

// Coupon is a discount rule identified by a code, with eligibility
// constraints and usage accounting. Codes are stored normalized upper-case.
type Coupon struct {
	ID          string
	Code        string
	Description string

	DiscountType  DiscountType
	Value         decimal.Decimal
	MaxDiscount   decimal.Decimal // required when DiscountType is percentage
	MinOrderValue decimal.Decimal

	MaxUses        int // global cap; 0 means unlimited
	MaxUsesPerUser int // per-user cap; 0 means unlimited; creation defaults to DefaultPerUserCap

	ValidFrom  time.Time
	ValidUntil time.Time
	Active     bool

	// Scope restrictions. Empty allow-lists mean unrestricted.
	ApplicableProducts   []string
	ApplicableCategories []string
	ApplicableUsers      []string
	ExcludedProducts     []string

	FreeShipping bool
	Combinable   bool

	UsageCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPerUserCap is the per-user usage cap applied at creation when a
// coupon does not declare one.
const DefaultPerUserCap = 1

// NormalizeCode canonicalizes a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// StatusAt derives the coupon's lifecycle status at the given instant.
// A coupon whose global cap is exhausted reports expired, matching how it
// is presented to customers.
func (c *Coupon) StatusAt(now time.Time) Status {
	switch {
	case !c.Active:
		return StatusInactive
	case !now.Before(c.ValidUntil):
		return StatusExpired
	case c.MaxUses > 0 && c.UsageCount >= c.MaxUses:
		return StatusExpired
	case now.Before(c.ValidFrom):
		return StatusUpcoming
	default:
		return StatusActive
	}
}

// Validate checks the coupon definition against creation-time invariants.
// It returns a *ValidationError describing the first violation found.
func (c *Coupon) Validate(now time.Time) error {
	if NormalizeCode(c.Code) == "" {
		return &ValidationError{Field: "code", Message: "code is required"}
	}
	switch c.DiscountType {
	case DiscountPercentage:
		if c.Value.LessThan(decimal.NewFromInt(1)) || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return &ValidationError{Field: "value", Message: "percentage value must be between 1 and 100"}
		}
		if !c.MaxDiscount.IsPositive() {
			return &ValidationError{Field: "maxDiscount", Message: "percentage coupons require a max discount cap"}
		}
	case DiscountFixed:
		if c.Value.LessThan(decimal.NewFromInt(1)) {
			return &ValidationError{Field: "value", Message: "fixed discount must be at least 1"}
		}
	default:
		return &ValidationError{Field: "discountType", Message: "unknown discount type"}
	}
	if c.MinOrderValue.IsNegative() {
		return &ValidationError{Field: "minOrderValue", Message: "minimum order value cannot be negative"}
	}
	if !c.ValidUntil.After(c.ValidFrom) {
		return &ValidationError{Field: "validUntil", Message: "validUntil must be after validFrom"}
	}
	if !c.ValidUntil.After(now) {
		return &ValidationError{Field: "validUntil", Message: "validUntil must be in the future"}
	}
	if c.MaxUses < 0 {
		return &ValidationError{Field: "maxUses", Message: "global usage cap cannot be negative"}
	}
	if c.MaxUsesPerUser < 0 {
		return &ValidationError{Field: "maxUsesPerUser", Message: "per-user usage cap cannot be negative"}
	}
	return nil
}

// UsageRecord is one committed use of a coupon.
type UsageRecord struct {
	OrderRef string
	Discount decimal.Decimal
	UsedAt   time.Time
	Released bool
}

// UserUsage is the per-user slice of a coupon's usage ledger.
type UserUsage struct {
	UserID     string
	Used       int
	LastUsedAt time.Time
	History    []UsageRecord
}

// Usage is the ledger view returned to callers: how often the user has
// consumed the coupon and how much allowance remains.
type Usage struct {
	Used       int
	Remaining  int
	Unlimited  bool
	LastUsedAt *time.Time
	History    []UsageRecord
}

// Repository provides persistence for coupons and their usage ledger.
//
// CommitUsage and ReleaseUsage must be atomic: the cap predicates are
// evaluated at increment time inside the store, never read-then-written in
// application code.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// Deactivate soft-deletes a coupon. Coupons are never hard-deleted.
	Deactivate(ctx context.Context, code string) error
	// FindByCode looks a coupon up by its normalized code, regardless of
	// active state. Returns ErrNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// ListUsable returns coupons that are active, inside their validity
	// window, and below their global cap at the given instant.
	ListUsable(ctx context.Context, now time.Time) ([]Coupon, error)
	// UserUsage returns the per-user ledger entry, or a zero entry when the
	// user has never used the coupon.
	UserUsage(ctx context.Context, code, userID string) (*UserUsage, error)
	// CommitUsage increments the global counter and the user's entry by one
	// and appends a history record, guarded by both caps. Returns
	// ErrGlobalLimitReached or ErrUserLimitReached when a guard fails.
	CommitUsage(ctx context.Context, c *Coupon, userID, orderRef string, discount decimal.Decimal, now time.Time) error
	// ReleaseUsage undoes one committed use for the given order reference,
	// flooring counters at zero and marking the history record released.
	ReleaseUsage(ctx context.Context, code, userID, orderRef string) error
}
