package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vendora/commerce-core/internal/domain/coupon"
)

const (
	createCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, max_discount,
		min_order_value, max_uses, max_uses_per_user, valid_from, valid_until, active,
		applicable_products, applicable_categories, applicable_users, excluded_products,
		free_shipping, combinable, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	updateCouponSQL = `UPDATE coupons SET description = $2, discount_type = $3, value = $4,
		max_discount = $5, min_order_value = $6, max_uses = $7, max_uses_per_user = $8,
		valid_from = $9, valid_until = $10, active = $11, applicable_products = $12,
		applicable_categories = $13, applicable_users = $14, excluded_products = $15,
		free_shipping = $16, combinable = $17, updated_at = $18
		WHERE code = $1`

	deactivateCouponSQL = `UPDATE coupons SET active = FALSE, updated_at = $2 WHERE code = $1`

	couponColumns = `id, code, description, discount_type, value, max_discount, min_order_value,
		max_uses, max_uses_per_user, valid_from, valid_until, active,
		applicable_products, applicable_categories, applicable_users, excluded_products,
		free_shipping, combinable, usage_count, created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	listUsableCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE active = TRUE AND valid_from <= $1 AND valid_until > $1
		AND (max_uses = 0 OR usage_count < max_uses)
		ORDER BY code`

	// The cap predicate lives inside the UPDATE so concurrent commits cannot
	// both pass a read-then-write check.
	incrementCouponUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = $2
		WHERE code = $1 AND (max_uses = 0 OR usage_count < max_uses)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`

	decrementCouponUsageSQL = `UPDATE coupons
		SET usage_count = GREATEST(usage_count - 1, 0), updated_at = $2
		WHERE code = $1`

	// Same trick per user: the upsert only lands when the cap ($4 = 0 means
	// uncapped) still has room.
	upsertUserUsageSQL = `INSERT INTO coupon_usages (coupon_code, user_id, used_count, last_used_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (coupon_code, user_id) DO UPDATE
		SET used_count = coupon_usages.used_count + 1, last_used_at = $3
		WHERE $4 = 0 OR coupon_usages.used_count < $4`

	decrementUserUsageSQL = `UPDATE coupon_usages
		SET used_count = GREATEST(used_count - 1, 0)
		WHERE coupon_code = $1 AND user_id = $2`

	insertUsageHistorySQL = `INSERT INTO coupon_usage_history (coupon_code, user_id, order_ref, discount, used_at)
		VALUES ($1, $2, $3, $4, $5)`

	releaseUsageHistorySQL = `UPDATE coupon_usage_history SET released = TRUE
		WHERE coupon_code = $1 AND user_id = $2 AND order_ref = $3 AND released = FALSE`

	getUserUsageSQL = `SELECT used_count, last_used_at FROM coupon_usages
		WHERE coupon_code = $1 AND user_id = $2`

	getUsageHistorySQL = `SELECT order_ref, discount, used_at, released FROM coupon_usage_history
		WHERE coupon_code = $1 AND user_id = $2 ORDER BY used_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. Usage
// commits run in a transaction with both cap guards evaluated by the store
// at increment time.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create persists a new coupon definition.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxDiscount,
		c.MinOrderValue, c.MaxUses, c.MaxUsesPerUser, c.ValidFrom, c.ValidUntil, c.Active,
		c.ApplicableProducts, c.ApplicableCategories, c.ApplicableUsers, c.ExcludedProducts,
		c.FreeShipping, c.Combinable, c.UsageCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update rewrites the coupon definition. Usage counters are never touched
// here; they only move through CommitUsage and ReleaseUsage.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.Value,
		c.MaxDiscount, c.MinOrderValue, c.MaxUses, c.MaxUsesPerUser,
		c.ValidFrom, c.ValidUntil, c.Active, c.ApplicableProducts,
		c.ApplicableCategories, c.ApplicableUsers, c.ExcludedProducts,
		c.FreeShipping, c.Combinable, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a coupon by clearing its active flag.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, code, time.Now())
	if err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// FindByCode looks a coupon up by its code (case-insensitive). Returns
// coupon.ErrNotFound when absent.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListUsable returns coupons that are active, inside their validity window,
// and below their global cap at the given instant.
func (r *CouponRepository) ListUsable(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listUsableCouponsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing usable coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// UserUsage returns the per-user ledger entry with its history, or a zero
// entry when the user has never used the coupon.
func (r *CouponRepository) UserUsage(ctx context.Context, code, userID string) (*coupon.UserUsage, error) {
	u := &coupon.UserUsage{UserID: userID}

	err := r.pool.QueryRow(ctx, getUserUsageSQL, code, userID).Scan(&u.Used, &u.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting usage for coupon %q user %q: %w", code, userID, err)
	}

	rows, err := r.pool.Query(ctx, getUsageHistorySQL, code, userID)
	if err != nil {
		return nil, fmt.Errorf("getting usage history for coupon %q user %q: %w", code, userID, err)
	}
	u.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.UsageRecord, error) {
		var rec coupon.UsageRecord
		err := row.Scan(&rec.OrderRef, &rec.Discount, &rec.UsedAt, &rec.Released)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting usage history for coupon %q user %q: %w", code, userID, err)
	}
	return u, nil
}

// CommitUsage consumes one use for the user in a single transaction: the
// global counter, the per-user counter, and a history record all land
// together or not at all. A failed cap guard surfaces as
// coupon.ErrGlobalLimitReached or coupon.ErrUserLimitReached.
func (r *CouponRepository) CommitUsage(ctx context.Context, c *coupon.Coupon, userID, orderRef string, discount decimal.Decimal, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning usage commit for coupon %q: %w", c.Code, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, incrementCouponUsageSQL, c.Code, now)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, couponExistsSQL, c.Code).Scan(&exists); err != nil {
			return fmt.Errorf("checking coupon %q: %w", c.Code, err)
		}
		if !exists {
			return coupon.ErrNotFound
		}
		return coupon.ErrGlobalLimitReached
	}

	tag, err = tx.Exec(ctx, upsertUserUsageSQL, c.Code, userID, now, c.MaxUsesPerUser)
	if err != nil {
		return fmt.Errorf("incrementing user usage for coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUserLimitReached
	}

	if _, err := tx.Exec(ctx, insertUsageHistorySQL, c.Code, userID, orderRef, discount, now); err != nil {
		return fmt.Errorf("recording usage history for coupon %q: %w", c.Code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing usage for coupon %q: %w", c.Code, err)
	}
	return nil
}

// ReleaseUsage undoes one committed use for the given order reference,
// flooring both counters at zero and marking the history record released.
func (r *CouponRepository) ReleaseUsage(ctx context.Context, code, userID, orderRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning usage release for coupon %q: %w", code, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, releaseUsageHistorySQL, code, userID, orderRef)
	if err != nil {
		return fmt.Errorf("releasing usage history for coupon %q: %w", code, err)
	}
	// Nothing to release: either never committed or already released.
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, decrementCouponUsageSQL, code, time.Now()); err != nil {
		return fmt.Errorf("decrementing usage for coupon %q: %w", code, err)
	}
	if _, err := tx.Exec(ctx, decrementUserUsageSQL, code, userID); err != nil {
		return fmt.Errorf("decrementing user usage for coupon %q: %w", code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("releasing usage for coupon %q: %w", code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MaxDiscount,
		&c.MinOrderValue, &c.MaxUses, &c.MaxUsesPerUser, &c.ValidFrom, &c.ValidUntil, &c.Active,
		&c.ApplicableProducts, &c.ApplicableCategories, &c.ApplicableUsers, &c.ExcludedProducts,
		&c.FreeShipping, &c.Combinable, &c.UsageCount, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
