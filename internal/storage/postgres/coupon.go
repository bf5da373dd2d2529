package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

const couponColumns = `id, code, description, discount_type, discount_value,
	minimum_purchase, maximum_discount, is_active, starts_at, ends_at,
	max_usage, max_usage_per_user, times_used, is_single_use,
	is_first_time_only, product_categories, created_at`

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var (
		c                    coupon.Coupon
		minPurchase, maxDisc decimal.NullDecimal
		endsAt               *time.Time
		maxUsage, maxPerUser *int
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue,
		&minPurchase, &maxDisc, &c.IsActive, &c.StartsAt, &endsAt,
		&maxUsage, &maxPerUser, &c.TimesUsed, &c.IsSingleUse,
		&c.IsFirstTimeOnly, &c.ProductCategories, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.MinimumPurchase = nullDecimal(minPurchase)
	c.MaximumDiscount = nullDecimal(maxDisc)
	c.EndsAt = endsAt
	c.MaxUsage = maxUsage
	c.MaxUsagePerUser = maxPerUser
	return &c, nil
}

// FindByCode looks up a coupon by its code. The match is exact and
// case-sensitive. Returns a RejectionError(INVALID_CODE) when absent.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon by code %q", code)
	}
	return c, nil
}

// GetByID returns a coupon by its identifier.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %q", id)
	}
	return c, nil
}

// List returns all coupons, newest first. Admin surface only.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+couponColumns+" FROM coupons ORDER BY created_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	defer rows.Close()

	var coupons []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan coupon")
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

// Create inserts a new coupon.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO coupons (id, code, description, discount_type, discount_value,
			minimum_purchase, maximum_discount, is_active, starts_at, ends_at,
			max_usage, max_usage_per_user, is_single_use, is_first_time_only,
			product_categories)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Code, c.Description, c.DiscountType, c.DiscountValue,
		toNullDecimal(c.MinimumPurchase), toNullDecimal(c.MaximumDiscount),
		c.IsActive, c.StartsAt, c.EndsAt,
		c.MaxUsage, c.MaxUsagePerUser, c.IsSingleUse, c.IsFirstTimeOnly,
		c.ProductCategories,
	)
	if err != nil {
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update rewrites all mutable coupon fields. times_used is owned by Redeem
// and is deliberately not touched here.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE coupons SET
			code = $2, description = $3, discount_type = $4, discount_value = $5,
			minimum_purchase = $6, maximum_discount = $7, is_active = $8,
			starts_at = $9, ends_at = $10, max_usage = $11, max_usage_per_user = $12,
			is_single_use = $13, is_first_time_only = $14, product_categories = $15
		WHERE id = $1`,
		c.ID, c.Code, c.Description, c.DiscountType, c.DiscountValue,
		toNullDecimal(c.MinimumPurchase), toNullDecimal(c.MaximumDiscount), c.IsActive,
		c.StartsAt, c.EndsAt, c.MaxUsage, c.MaxUsagePerUser,
		c.IsSingleUse, c.IsFirstTimeOnly, c.ProductCategories,
	)
	if err != nil {
		return errors.Wrapf(err, "update coupon %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon; usage rows cascade with it.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM coupons WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// CountUsageByUser returns how many times the user has redeemed the coupon.
func (r *CouponRepository) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		"SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2",
		couponID, userID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count coupon usage")
	}
	return n, nil
}

// Redeem consumes one usage slot. The usage row is inserted first and its
// (coupon_id, order_id) key doubles as an idempotency guard: a retried
// confirmation for the same order hits the conflict and skips the increment,
// so one order can never consume two slots. The usage-cap check and the
// times_used increment are a single conditional UPDATE, so two concurrent
// checkouts cannot both take the last slot.
func (r *CouponRepository) Redeem(ctx context.Context, couponID, userID, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin redeem")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		INSERT INTO coupon_usages (coupon_id, user_id, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		couponID, userID, orderID,
	)
	if err != nil {
		return errors.Wrap(err, "record coupon usage")
	}
	if tag.RowsAffected() == 0 {
		// Already redeemed for this order.
		return tx.Commit(ctx)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (max_usage IS NULL OR times_used < max_usage)`,
		couponID,
	)
	if err != nil {
		return errors.Wrapf(err, "increment coupon %q", couponID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrRedeemExhausted
	}

	return tx.Commit(ctx)
}
