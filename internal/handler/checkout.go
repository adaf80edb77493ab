package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/summary"
)

// OpenCheckout handles POST /api/checkout.
func (h *Handler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	in, err := decodeOpenRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, store, err := h.sessions.Open(in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Checkout opened",
		zap.Stringer("session_id", id),
		zap.Int64s("item_ids", in.ItemIDs),
	)

	w.Header().Set("Location", "/api/checkout/"+id.String())
	writeSnapshot(w, http.StatusCreated, id, store.Snapshot())
}

// GetCheckout handles GET /api/checkout/{id}.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, http.StatusOK, id, store.Snapshot())
}

// CloseCheckout handles DELETE /api/checkout/{id}.
func (h *Handler) CloseCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.sessions.Close(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectDiscount handles PUT /api/checkout/{id}/discount.
func (h *Handler) SelectDiscount(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	amount, err := decodeInt64Field(r, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.SelectDiscount(money.Money(amount)); err != nil {
		writeError(w, r, err)
		return
	}
	writeSnapshot(w, http.StatusOK, id, store.Snapshot())
}

// SelectCoupon handles PUT /api/checkout/{id}/coupon.
func (h *Handler) SelectCoupon(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	couponID, err := decodeInt64Field(r, "couponId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.SelectCoupon(couponID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSnapshot(w, http.StatusOK, id, store.Snapshot())
}

// ClearCoupon handles DELETE /api/checkout/{id}/coupon.
func (h *Handler) ClearCoupon(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := store.ClearCoupon(); err != nil {
		writeError(w, r, err)
		return
	}
	writeSnapshot(w, http.StatusOK, id, store.Snapshot())
}

// CompleteOrder handles POST /api/checkout/{id}/complete. The submission runs
// in the background; poll the completion endpoint for its result.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	id, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := store.CompleteOrder(); err != nil {
		writeError(w, r, err)
		return
	}
	writeSnapshot(w, http.StatusAccepted, id, store.Snapshot())
}

// ConsumeCompletion handles GET /api/checkout/{id}/completion. A completion is
// returned once; later calls get 204 until the next submission finishes.
func (h *Handler) ConsumeCompletion(w http.ResponseWriter, r *http.Request) {
	_, store, ok := h.lookup(w, r)
	if !ok {
		return
	}
	c, ok := store.Snapshot().Completion.Consume()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeCompletion(w, c)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, *summary.Store, bool) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return uuid.Nil, nil, false
	}
	store, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, r, err)
		return uuid.Nil, nil, false
	}
	return id, store, true
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &BadRequestError{Err: errors.Wrap(err, "parse checkout id")}
	}
	return id, nil
}
