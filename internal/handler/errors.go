package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/session"
	"github.com/xenking/kart-checkout/internal/summary"
)

// BadRequestError wraps a malformed request.
type BadRequestError struct {
	Err error
}

func (e *BadRequestError) Error() string { return e.Err.Error() }

func (e *BadRequestError) Unwrap() error { return e.Err }

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		badRequest *BadRequestError
		invalid    *summary.InvalidDiscountError
		duplicate  *summary.DuplicateItemError
		notFound   *summary.CouponNotFoundError
	)
	switch {
	case errors.As(err, &badRequest),
		errors.As(err, &duplicate),
		errors.Is(err, order.ErrEmptySelection),
		errors.Is(err, summary.ErrNegativeSubtotal),
		errors.Is(err, summary.ErrTotalOverflow):
		return http.StatusBadRequest
	case errors.As(err, &invalid),
		errors.As(err, &notFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, summary.ErrCouponsNotLoaded),
		errors.Is(err, summary.ErrSubmitInProgress),
		errors.Is(err, summary.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, summary.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrLimitReached),
		errors.Is(err, session.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"code": <status>, "message": "..."}. Internal
// errors are logged and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = http.StatusText(status)
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}
