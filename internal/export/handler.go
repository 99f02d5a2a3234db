package export

import (
	"net/http"
	"strconv"

	"github.com/offercdp/offercdp/internal/platform/httpx"
)

// Handler exposes the campaign extract projection.
type Handler struct {
	service *Service
}

// NewHandler constructs a handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Campaign returns one page of the campaign feed.
func (h *Handler) Campaign(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagingParams(r)
	rows, err := h.service.Extract(r.Context(), page, pageSize)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

// CampaignWorkbook streams one page of the campaign feed as an xlsx workbook.
func (h *Handler) CampaignWorkbook(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagingParams(r)
	f, err := h.service.Workbook(r.Context(), page, pageSize)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="campaign.xlsx"`)
	// Headers are already written; a failed write cannot be reported to the
	// client beyond the truncated body.
	_ = f.Write(w)
}

func pagingParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}
