package coupon

import (
	"fmt"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// expiryLayout is the date format shown for coupon expiration.
const expiryLayout = "2006-01-02"

// View is the display form of a Coupon.
type View struct {
	ID            int64
	Code          string
	Title         string
	ExpiresOn     string
	MinimumAmount string
	DiscountType  DiscountType

	coupon Coupon
}

// ToView converts c to its display form.
func ToView(c Coupon) View {
	v := View{
		ID:           c.ID,
		Code:         c.Code,
		Title:        c.Description,
		DiscountType: c.DiscountType,
		coupon:       c,
	}
	if !c.ExpiresAt.IsZero() {
		v.ExpiresOn = c.ExpiresAt.Format(expiryLayout)
	}
	if c.MinimumAmount > money.Zero {
		v.MinimumAmount = fmt.Sprintf("minimum order %s", c.MinimumAmount)
	}
	return v
}

// Coupon returns the coupon v was built from.
func (v View) Coupon() Coupon {
	return v.coupon
}
