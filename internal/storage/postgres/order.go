package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, item_ids, coupon_id, discount_amount, final_total, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

var _ order.Submitter = (*OrderRepository)(nil)

// OrderRepository implements order.Submitter backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Submit persists a finalized order. A zero coupon id is stored as NULL.
func (r *OrderRepository) Submit(ctx context.Context, s order.Submission) error {
	var couponID *int64
	if s.CouponID != 0 {
		couponID = &s.CouponID
	}

	_, err := r.pool.Exec(ctx, createOrderSQL,
		s.ID, s.ItemIDs, couponID, s.DiscountAmount.Decimal(), s.FinalTotal.Decimal(), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", s.ID, err)
	}

	return nil
}
