// Package orderapi implements order.Submitter over the remote order service.
package orderapi

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/client"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

var _ order.Submitter = (*Client)(nil)

// Client submits finalized orders to the order service.
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

// Submit calls POST /orders. The order id doubles as the idempotency key.
func (c *Client) Submit(ctx context.Context, s order.Submission) error {
	body := encodeSubmission(s)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", s.ID)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post order")
	}
	defer func() { _ = resp.Body.Close() }()

	return client.CheckStatus(resp)
}

func encodeSubmission(s order.Submission) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("cartItemIds")
	e.ArrStart()
	for _, id := range s.ItemIDs {
		e.Int64(id)
	}
	e.ArrEnd()
	if s.CouponID != 0 {
		e.FieldStart("couponId")
		e.Int64(s.CouponID)
	}
	e.FieldStart("discountAmount")
	e.Int64(int64(s.DiscountAmount))
	e.FieldStart("finalTotal")
	e.Int64(int64(s.FinalTotal))
	e.FieldStart("createdAt")
	e.Str(s.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
	return e.Bytes()
}
