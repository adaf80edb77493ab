package summary

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// Sentinel errors returned by Store operations.
var (
	ErrClosed              = errors.New("order summary closed")
	ErrNegativeSubtotal    = errors.New("subtotal must not be negative")
	ErrNegativeShipping    = errors.New("shipping fee must not be negative")
	ErrTotalOverflow       = errors.New("subtotal plus shipping fee is out of range")
	ErrCouponsNotLoaded    = errors.New("coupons not loaded")
	ErrSubmitInProgress    = errors.New("order submission in progress")
	ErrAlreadyCompleted    = errors.New("order already completed")
	ErrMissingCollaborator = errors.New("coupon provider and order submitter are required")
)

// InvalidDiscountError indicates a discount outside [0, shipping+subtotal].
type InvalidDiscountError struct {
	Amount money.Money
	Max    money.Money
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount %s outside [0, %s]", e.Amount, e.Max)
}

// DuplicateItemError indicates an item id selected more than once.
type DuplicateItemError struct {
	ItemID int64
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("item %d selected more than once", e.ItemID)
}

// CouponNotFoundError indicates a coupon id absent from the loaded coupons.
type CouponNotFoundError struct {
	CouponID int64
}

func (e *CouponNotFoundError) Error() string {
	return fmt.Sprintf("coupon %d not found", e.CouponID)
}
