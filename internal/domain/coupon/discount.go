package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Order holds the amounts a discount is calculated against.
type Order struct {
	Subtotal    money.Money
	ShippingFee money.Money
	// ItemPrices are unit prices of the selected items, when known.
	ItemPrices []money.Money
}

// Apply calculates the discount c grants for o. The result is never negative
// and never exceeds the order's subtotal plus shipping fee.
func Apply(c Coupon, o Order) (money.Money, error) {
	var amount money.Money
	switch c.DiscountType {
	case DiscountFixed:
		amount = money.Min(money.Money(c.Discount), o.Subtotal)
	case DiscountPercentage:
		amount = applyPercentage(c.Discount, o.Subtotal)
	case DiscountFreeShipping:
		amount = o.ShippingFee
	case DiscountFreeLowest:
		amount = findLowestPrice(o.ItemPrices)
	default:
		return 0, errors.Wrapf(ErrUnsupportedDiscount, "%q", c.DiscountType)
	}
	return clamp(amount, o.Subtotal+o.ShippingFee), nil
}

func applyPercentage(percent int64, subtotal money.Money) money.Money {
	amount := subtotal.Decimal().Mul(decimal.NewFromInt(percent)).Div(hundred)
	return money.FromDecimal(amount)
}

// findLowestPrice returns the lowest unit price, or zero for no prices.
func findLowestPrice(prices []money.Money) money.Money {
	if len(prices) == 0 {
		return money.Zero
	}
	lowest := prices[0]
	for _, p := range prices[1:] {
		lowest = money.Min(lowest, p)
	}
	return lowest
}

func clamp(amount, limit money.Money) money.Money {
	if amount.IsNegative() {
		return money.Zero
	}
	return money.Min(amount, limit)
}
