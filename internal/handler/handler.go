// Package handler exposes the checkout order summary over HTTP.
package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/summary"
)

// Sessions opens and looks up checkout stores.
type Sessions interface {
	Open(in summary.Input) (uuid.UUID, *summary.Store, error)
	Get(id uuid.UUID) (*summary.Store, error)
	Close(id uuid.UUID) error
}

// Handler serves the checkout API.
type Handler struct {
	sessions Sessions
}

// New creates a Handler backed by sessions.
func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// Register adds the checkout routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.OpenCheckout)
	mux.HandleFunc("GET /api/checkout/{id}", h.GetCheckout)
	mux.HandleFunc("DELETE /api/checkout/{id}", h.CloseCheckout)
	mux.HandleFunc("PUT /api/checkout/{id}/discount", h.SelectDiscount)
	mux.HandleFunc("PUT /api/checkout/{id}/coupon", h.SelectCoupon)
	mux.HandleFunc("DELETE /api/checkout/{id}/coupon", h.ClearCoupon)
	mux.HandleFunc("POST /api/checkout/{id}/complete", h.CompleteOrder)
	mux.HandleFunc("GET /api/checkout/{id}/completion", h.ConsumeCompletion)
}

// Routes returns a ServeMux with the checkout routes registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
