package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/offercdp/offercdp/internal/platform/httpx"
)

// Handler exposes read access to customer records.
type Handler struct {
	service *Service
}

// NewHandler constructs a handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get returns one customer by ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}
