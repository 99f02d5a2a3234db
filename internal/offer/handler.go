package offer

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/offercdp/offercdp/internal/history"
	"github.com/offercdp/offercdp/internal/platform/httpx"
)

// Handler exposes read access to offers and their history.
type Handler struct {
	store   Store
	history *history.Repository
}

// NewHandler constructs a handler.
func NewHandler(store Store, hist *history.Repository) *Handler {
	return &Handler{store: store, history: hist}
}

// Get returns one offer by ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

// ListByCustomer returns all offers for one customer, oldest first.
func (h *Handler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	offers, err := h.store.ListByCustomer(r.Context(), customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, offers)
}

// History returns the status transition trail for one offer.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.ListByOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
