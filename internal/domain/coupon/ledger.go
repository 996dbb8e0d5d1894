package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Ledger is the usage-accounting component layered over a Repository. It
// owns the commit/release/query contract; the cap guards themselves are
// enforced atomically by the repository at increment time.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Commit records one use of the coupon by the user for the given order
// reference. Each call increments the global counter and the user's entry by
// exactly one; it is NOT idempotent, so callers must ensure at-most-once
// invocation per (coupon, order) pair, e.g. by checking the order does not
// already carry this coupon.
func (l *Ledger) Commit(ctx context.Context, c *Coupon, userID, orderRef string, discount decimal.Decimal) error {
	if err := l.repo.CommitUsage(ctx, c, userID, orderRef, discount, l.now()); err != nil {
		return errors.Wrap(err, "commit coupon usage")
	}
	return nil
}

// Release undoes the commit made for the given order reference. Counters
// floor at zero; the history record is kept and marked released.
func (l *Ledger) Release(ctx context.Context, c *Coupon, userID, orderRef string) error {
	if err := l.repo.ReleaseUsage(ctx, c.Code, userID, orderRef); err != nil {
		return errors.Wrap(err, "release coupon usage")
	}
	return nil
}

// Query returns the user's view of the coupon ledger: used count, remaining
// allowance (unlimited when the coupon has no per-user cap), last-used
// timestamp, and history.
func (l *Ledger) Query(ctx context.Context, c *Coupon, userID string) (Usage, error) {
	entry, err := l.repo.UserUsage(ctx, c.Code, userID)
	if err != nil {
		return Usage{}, errors.Wrap(err, "query coupon usage")
	}

	u := Usage{}
	if entry != nil {
		u.Used = entry.Used
		u.History = entry.History
		if !entry.LastUsedAt.IsZero() {
			t := entry.LastUsedAt
			u.LastUsedAt = &t
		}
	}

	if c.MaxUsesPerUser == 0 {
		u.Unlimited = true
		return u, nil
	}
	u.Remaining = c.MaxUsesPerUser - u.Used
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	return u, nil
}
