// Package couponapi implements coupon.Provider over the remote coupon service.
package couponapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

var _ coupon.Provider = (*Client)(nil)

// Client fetches coupons applicable to cart items from the coupon service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the service at baseURL. A nil httpClient selects
// an instrumented client with client.DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = client.New(client.DefaultTimeout)
	}
	return &Client{baseURL: client.BaseURL(baseURL), http: httpClient}
}

// FindCoupons calls GET /coupons?cartItemIds=1,2,3.
func (c *Client) FindCoupons(ctx context.Context, itemIDs []int64) ([]coupon.Coupon, error) {
	q := url.Values{}
	q.Set("cartItemIds", joinIDs(itemIDs))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coupons?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "get coupons")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := client.CheckStatus(resp); err != nil {
		return nil, err
	}
	data, err := client.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	return decodeCoupons(data)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func decodeCoupons(data []byte) ([]coupon.Coupon, error) {
	coupons := []coupon.Coupon{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		c, err := decodeCoupon(d)
		if err != nil {
			return err
		}
		coupons = append(coupons, c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode coupons")
	}
	return coupons, nil
}

func decodeCoupon(d *jx.Decoder) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}

		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "code":
			c.Code, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		case "discountType":
			var v string
			v, err = d.Str()
			c.DiscountType = coupon.DiscountType(strings.ToLower(v))
		case "discount":
			c.Discount, err = d.Int64()
		case "minimumAmount":
			var v int64
			v, err = d.Int64()
			c.MinimumAmount = money.Money(v)
		case "buyQuantity":
			c.BuyQuantity, err = d.Int()
		case "getQuantity":
			c.GetQuantity, err = d.Int()
		case "expirationDate":
			var v string
			if v, err = d.Str(); err == nil {
				c.ExpiresAt, err = time.Parse(time.DateOnly, v)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return c, err
}
