package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/summary"
)

const maxRequestBody = 64 << 10

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, &BadRequestError{Err: errors.Wrap(err, "read body")}
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, &BadRequestError{Err: errors.New("body must be a JSON object")}
	}
	return d, nil
}

func decodeOpenRequest(r *http.Request) (summary.Input, error) {
	var in summary.Input

	d, err := readBody(r)
	if err != nil {
		return in, err
	}
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "cartItemIds":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Int64()
				if err != nil {
					return err
				}
				in.ItemIDs = append(in.ItemIDs, v)
				return nil
			})
		case "subtotal":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			in.Subtotal = money.Money(v)
			return nil
		case "itemPrices":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Int64()
				if err != nil {
					return err
				}
				in.ItemPrices = append(in.ItemPrices, money.Money(v))
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return in, &BadRequestError{Err: errors.Wrap(err, "decode checkout")}
	}
	return in, nil
}

// decodeInt64Field reads a body of the form {"<field>": <int>}.
func decodeInt64Field(r *http.Request, field string) (int64, error) {
	d, err := readBody(r)
	if err != nil {
		return 0, err
	}

	var (
		v     int64
		found bool
	)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		found = true
		v, err = d.Int64()
		return err
	})
	if err != nil {
		return 0, &BadRequestError{Err: errors.Wrapf(err, "decode %s", field)}
	}
	if !found {
		return 0, &BadRequestError{Err: errors.Errorf("missing %q", field)}
	}
	return v, nil
}

func encodeSnapshot(e *jx.Encoder, id uuid.UUID, s summary.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(id.String()) })
		e.Field("cartItemIds", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range s.ItemIDs {
					e.Int64(id)
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { e.Int64(int64(s.Subtotal)) })
		e.Field("shippingFee", func(e *jx.Encoder) { e.Int64(int64(s.ShippingFee)) })
		e.Field("discountAmount", func(e *jx.Encoder) { e.Int64(int64(s.DiscountAmount)) })
		e.Field("maxDiscount", func(e *jx.Encoder) { e.Int64(int64(s.MaxDiscount())) })
		e.Field("finalTotal", func(e *jx.Encoder) { e.Int64(int64(s.FinalTotal())) })
		if s.SelectedCouponID != 0 {
			e.Field("selectedCouponId", func(e *jx.Encoder) { e.Int64(s.SelectedCouponID) })
		}
		e.Field("submitting", func(e *jx.Encoder) { e.Bool(s.Submitting) })
		e.Field("completionPending", func(e *jx.Encoder) {
			e.Bool(s.Completion != nil && !s.Completion.Consumed())
		})
		e.Field("coupons", func(e *jx.Encoder) { encodeCoupons(e, s.Coupons) })
	})
}

func encodeCoupons(e *jx.Encoder, c summary.CouponsState) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(c.Status)) })
		if c.Err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(c.Err.Error()) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, v := range c.Coupons {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Int64(v.ID) })
					e.Field("code", func(e *jx.Encoder) { e.Str(v.Code) })
					e.Field("title", func(e *jx.Encoder) { e.Str(v.Title) })
					e.Field("discountType", func(e *jx.Encoder) { e.Str(string(v.DiscountType)) })
					if v.ExpiresOn != "" {
						e.Field("expiresOn", func(e *jx.Encoder) { e.Str(v.ExpiresOn) })
					}
					if v.MinimumAmount != "" {
						e.Field("minimumAmount", func(e *jx.Encoder) { e.Str(v.MinimumAmount) })
					}
				})
			}
			e.ArrEnd()
		})
	})
}

func writeSnapshot(w http.ResponseWriter, status int, id uuid.UUID, s summary.Snapshot) {
	var e jx.Encoder
	encodeSnapshot(&e, id, s)
	writeJSON(w, status, e.Bytes())
}

func writeCompletion(w http.ResponseWriter, c summary.Completion) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(c.Success) })
		if c.OrderID != "" {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(c.OrderID) })
		}
		if c.Err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(c.Err.Error()) })
		}
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
