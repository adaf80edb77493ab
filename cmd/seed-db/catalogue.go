package main

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

// entry is a catalogue coupon and the items it is limited to.
type entry struct {
	coupon.Coupon
	ItemIDs []int64
}

var defaultCatalogue = []entry{
	{Coupon: coupon.Coupon{
		Code:          "FIXED5000",
		Description:   "5,000 off orders of 100,000 or more",
		DiscountType:  coupon.DiscountFixed,
		Discount:      5000,
		MinimumAmount: 100000,
	}},
	{Coupon: coupon.Coupon{
		Code:         "BOGO",
		Description:  "Buy 2, get 1 free",
		DiscountType: coupon.DiscountFreeLowest,
		BuyQuantity:  2,
		GetQuantity:  1,
	}},
	{Coupon: coupon.Coupon{
		Code:          "FREESHIPPING",
		Description:   "Free shipping on orders of 50,000 or more",
		DiscountType:  coupon.DiscountFreeShipping,
		MinimumAmount: 50000,
	}},
	{Coupon: coupon.Coupon{
		Code:         "MIRACLESALE",
		Description:  "Miracle sale: 30% off",
		DiscountType: coupon.DiscountPercentage,
		Discount:     30,
	}},
}

// parseCatalogue reads a JSON array of coupons:
//
//	[{"code": "FIXED5000", "description": "...", "discountType": "fixed",
//	  "discount": 5000, "minimumAmount": 100000, "expirationDate": "2025-12-31",
//	  "itemIds": [1, 2]}]
func parseCatalogue(data []byte) ([]entry, error) {
	var out []entry
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var e entry
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			return decodeField(d, key, &e)
		}); err != nil {
			return err
		}
		if e.Code == "" {
			return errors.Errorf("coupon %d has no code", len(out))
		}
		switch e.DiscountType {
		case coupon.DiscountFixed, coupon.DiscountPercentage, coupon.DiscountFreeShipping, coupon.DiscountFreeLowest:
		default:
			return errors.Wrapf(coupon.ErrUnsupportedDiscount, "coupon %s: %q", e.Code, e.DiscountType)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeField(d *jx.Decoder, key string, e *entry) error {
	var err error
	switch key {
	case "code":
		e.Code, err = d.Str()
	case "description":
		e.Description, err = d.Str()
	case "discountType":
		var s string
		s, err = d.Str()
		e.DiscountType = coupon.DiscountType(strings.ToLower(s))
	case "discount":
		e.Discount, err = d.Int64()
	case "minimumAmount":
		var v int64
		v, err = d.Int64()
		e.MinimumAmount = money.Money(v)
	case "buyQuantity":
		e.BuyQuantity, err = d.Int()
	case "getQuantity":
		e.GetQuantity, err = d.Int()
	case "expirationDate":
		var s string
		if s, err = d.Str(); err == nil {
			e.ExpiresAt, err = time.Parse(time.DateOnly, s)
		}
	case "itemIds":
		err = d.Arr(func(d *jx.Decoder) error {
			id, err := d.Int64()
			e.ItemIDs = append(e.ItemIDs, id)
			return err
		})
	default:
		return d.Skip()
	}
	if err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}
