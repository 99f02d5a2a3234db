package journey

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/offercdp/offercdp/internal/platform/httpx"
)

// Handler exposes the journey-status event feed.
type Handler struct {
	service *Service
}

// NewHandler constructs a handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// EventRequest is the inbound journey event payload.
type EventRequest struct {
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	ReportedAt time.Time `json:"reported_at,omitempty"`
}

// RecordEvent appends one journey status event for a LAN.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	id, err := h.service.RecordEvent(r.Context(), Event{
		LAN:        chi.URLParam(r, "lan"),
		Outcome:    Outcome(req.Outcome),
		Stage:      req.Stage,
		ReportedAt: req.ReportedAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// LatestStatus returns the latest known status for a LAN.
func (h *Handler) LatestStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.LatestStatus(r.Context(), chi.URLParam(r, "lan"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}
