package summary

import (
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/event"
)

// CouponStatus is the progress of the coupon fetch.
type CouponStatus string

const (
	// CouponsNotLoaded is the state before the fetch starts.
	CouponsNotLoaded CouponStatus = "not_loaded"
	// CouponsLoading indicates the fetch is in flight.
	CouponsLoading CouponStatus = "loading"
	// CouponsLoaded indicates the fetch succeeded.
	CouponsLoaded CouponStatus = "loaded"
	// CouponsFailed indicates the fetch failed; CouponsState.Err holds the reason.
	CouponsFailed CouponStatus = "failed"
)

// IsTerminal reports whether no further transition will happen.
func (s CouponStatus) IsTerminal() bool {
	return s == CouponsLoaded || s == CouponsFailed
}

// CouponsState is the result of the coupon fetch.
type CouponsState struct {
	Status  CouponStatus
	Coupons []coupon.View
	Err     error
}

// Completion is the outcome of an order submission.
type Completion struct {
	Success bool
	OrderID string
	Err     error
}

// Snapshot is a consistent view of the order summary. Slices are shared and
// must not be modified.
type Snapshot struct {
	ItemIDs          []int64
	Subtotal         money.Money
	ShippingFee      money.Money
	DiscountAmount   money.Money
	SelectedCouponID int64
	Coupons          CouponsState
	Submitting       bool

	// Completion is set once a submission finishes. It is consumed at most
	// once across all subscribers.
	Completion *event.Event[Completion]
}

// FinalTotal is the amount charged: shipping fee plus subtotal minus discount.
func (s Snapshot) FinalTotal() money.Money {
	return s.ShippingFee + s.Subtotal - s.DiscountAmount
}

// MaxDiscount is the largest discount that keeps the final total non-negative.
func (s Snapshot) MaxDiscount() money.Money {
	return s.ShippingFee + s.Subtotal
}

// findCoupon returns the loaded coupon with the given id.
func (s Snapshot) findCoupon(id int64) (coupon.View, bool) {
	for _, v := range s.Coupons.Coupons {
		if v.ID == id {
			return v, true
		}
	}
	return coupon.View{}, false
}
