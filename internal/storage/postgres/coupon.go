package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

const (
	findCouponsSQL = `SELECT c.id, c.code, c.description, c.discount_type, c.discount,
		c.minimum_amount, c.buy_quantity, c.get_quantity, c.expires_at
		FROM coupons c
		WHERE c.active = TRUE
			AND (c.expires_at IS NULL OR c.expires_at > NOW())
			AND (
				NOT EXISTS (SELECT 1 FROM coupon_items ci WHERE ci.coupon_id = c.id)
				OR EXISTS (SELECT 1 FROM coupon_items ci WHERE ci.coupon_id = c.id AND ci.item_id = ANY($1))
			)
		ORDER BY c.id`

	upsertCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount,
			minimum_amount, buy_quantity, get_quantity, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount = EXCLUDED.discount,
			minimum_amount = EXCLUDED.minimum_amount,
			buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity,
			expires_at = EXCLUDED.expires_at,
			active = TRUE
		RETURNING id`

	clearCouponItemsSQL  = `DELETE FROM coupon_items WHERE coupon_id = $1`
	insertCouponItemsSQL = `INSERT INTO coupon_items (coupon_id, item_id)
		SELECT $1, unnest($2::BIGINT[])
		ON CONFLICT DO NOTHING`
)

var _ coupon.Provider = (*CouponRepository)(nil)

// CouponRepository implements coupon.Provider backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindCoupons returns active, unexpired coupons that are unrestricted or
// scoped to at least one of the given items, ordered by id.
func (r *CouponRepository) FindCoupons(ctx context.Context, itemIDs []int64) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponsSQL, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("finding coupons for items %v: %w", itemIDs, err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("finding coupons for items %v: %w", itemIDs, err)
	}
	return coupons, nil
}

// UpsertCoupon inserts c or updates the coupon with the same code, and
// returns its id.
func (r *CouponRepository) UpsertCoupon(ctx context.Context, c coupon.Coupon) (int64, error) {
	var expiresAt *time.Time
	if !c.ExpiresAt.IsZero() {
		expiresAt = &c.ExpiresAt
	}

	var id int64
	err := r.pool.QueryRow(ctx, upsertCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.Discount,
		c.MinimumAmount.Decimal(), c.BuyQuantity, c.GetQuantity, expiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return id, nil
}

// SetCouponItems scopes a coupon to itemIDs, replacing any previous scope.
// An empty itemIDs makes the coupon apply to every item.
func (r *CouponRepository) SetCouponItems(ctx context.Context, couponID int64, itemIDs []int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearCouponItemsSQL, couponID); err != nil {
			return fmt.Errorf("clearing items of coupon %d: %w", couponID, err)
		}
		if len(itemIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertCouponItemsSQL, couponID, itemIDs); err != nil {
			return fmt.Errorf("scoping coupon %d to items: %w", couponID, err)
		}
		return nil
	})
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		discountType  string
		minimumAmount decimal.Decimal
		buyQuantity   int32
		getQuantity   int32
		expiresAt     *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Discount,
		&minimumAmount, &buyQuantity, &getQuantity, &expiresAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MinimumAmount = money.FromDecimal(minimumAmount)
	c.BuyQuantity = int(buyQuantity)
	c.GetQuantity = int(getQuantity)
	if expiresAt != nil {
		c.ExpiresAt = *expiresAt
	}
	return c, err
}
