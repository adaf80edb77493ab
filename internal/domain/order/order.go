package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// Submission is a finalized checkout handed to a Submitter.
type Submission struct {
	ID             string
	ItemIDs        []int64
	CouponID       int64
	DiscountAmount money.Money
	FinalTotal     money.Money
	CreatedAt      time.Time
}

// Submitter submits finalized orders.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// NewSubmission creates a Submission with a fresh ID after validating amounts.
// CouponID zero means no coupon was applied.
func NewSubmission(itemIDs []int64, couponID int64, discount, total money.Money, now time.Time) (Submission, error) {
	if len(itemIDs) == 0 {
		return Submission{}, ErrEmptySelection
	}
	if discount.IsNegative() || total.IsNegative() {
		return Submission{}, ErrNegativeAmount
	}
	ids := make([]int64, len(itemIDs))
	copy(ids, itemIDs)
	return Submission{
		ID:             uuid.New().String(),
		ItemIDs:        ids,
		CouponID:       couponID,
		DiscountAmount: discount,
		FinalTotal:     total,
		CreatedAt:      now,
	}, nil
}
