package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFixed subtracts a fixed amount from the order.
	DiscountFixed DiscountType = "fixed"
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFreeShipping waives the shipping fee.
	DiscountFreeShipping DiscountType = "free_shipping"
	// DiscountFreeLowest removes the cost of the cheapest selected item.
	DiscountFreeLowest DiscountType = "free_lowest"
)

// ErrUnsupportedDiscount is returned by Apply for an unknown discount type.
var ErrUnsupportedDiscount = errors.New("unsupported discount type")

// Coupon is a server-defined discount rule applicable to a set of cart items.
// Coupons are owned by the Provider; checkout only holds read-only copies.
//
// Discount is an amount for fixed coupons and a percent for percentage coupons.
type Coupon struct {
	ID            int64
	Code          string
	Description   string
	ExpiresAt     time.Time
	DiscountType  DiscountType
	Discount      int64
	MinimumAmount money.Money
	BuyQuantity   int
	GetQuantity   int
}

// Provider finds coupons applicable to the given cart item ids. Results are
// pre-filtered for eligibility by the provider.
type Provider interface {
	FindCoupons(ctx context.Context, itemIDs []int64) ([]Coupon, error)
}
