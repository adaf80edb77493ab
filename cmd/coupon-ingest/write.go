package main

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

// codeRules are the discounts of well-known codes. Other valid codes get
// defaultRule.
var codeRules = map[string]coupon.Coupon{
	"BIRTHDAY": {DiscountType: coupon.DiscountFreeLowest, Description: "Birthday: free lowest item"},
	"BUYGETON": {DiscountType: coupon.DiscountFreeLowest, BuyQuantity: 2, GetQuantity: 1, Description: "Lowest item free (buy 2+)"},
	"FIFTYOFF": {DiscountType: coupon.DiscountPercentage, Discount: 50, Description: "50% off entire order"},
	"SIXTYOFF": {DiscountType: coupon.DiscountPercentage, Discount: 60, Description: "60% off entire order"},
	"FREEZAAA": {DiscountType: coupon.DiscountPercentage, Discount: 100, Description: "Everything free!"},
	"GNULINUX": {DiscountType: coupon.DiscountPercentage, Discount: 15, Description: "Open source discount: 15% off"},
	"OVER9000": {DiscountType: coupon.DiscountFixed, Discount: 9000, MinimumAmount: money.Money(90000), Description: "9,000 off orders over 90,000"},
	"HAPPYHRS": {DiscountType: coupon.DiscountPercentage, Discount: 18, Description: "Happy Hours: 18% off"},
	"FREESHIP": {DiscountType: coupon.DiscountFreeShipping, Description: "Free shipping"},
}

var defaultRule = coupon.Coupon{
	DiscountType: coupon.DiscountPercentage,
	Discount:     10,
	Description:  "Valid promo code: 10% off",
}

func couponFor(code string) coupon.Coupon {
	c, ok := codeRules[code]
	if !ok {
		c = defaultRule
	}
	c.Code = code
	return c
}

// couponWriter persists a coupon and returns its id.
type couponWriter interface {
	UpsertCoupon(ctx context.Context, c coupon.Coupon) (int64, error)
}

func writeCoupons(ctx context.Context, lg *zap.Logger, w couponWriter, codes []string, workers int) error {
	lg.Info("Writing coupons", zap.Int("count", len(codes)), zap.Int("workers", workers))

	var written atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, code := range codes {
		g.Go(func() error {
			if _, err := w.UpsertCoupon(ctx, couponFor(code)); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", code)
			}
			if n := written.Add(1); n%100 == 0 {
				lg.Info("Write progress", zap.Int64("written", n), zap.Int("total", len(codes)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("Coupons written", zap.Int64("count", written.Load()))
	return nil
}
