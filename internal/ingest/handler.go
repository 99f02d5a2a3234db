package ingest

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/offercdp/offercdp/internal/platform/httpx"
	"github.com/offercdp/offercdp/internal/shared"
)

// Handler exposes the ingestion entry points.
type Handler struct {
	service *Service
	idem    *shared.IdempotencyStore
	logger  *slog.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *Service, idem *shared.IdempotencyStore, logger *slog.Logger) *Handler {
	return &Handler{service: service, idem: idem, logger: logger}
}

// Ingest handles one normalized record from a real-time source.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var rec Record
	if err := httpx.DecodeJSON(w, r, &rec); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	result, err := h.service.Process(r.Context(), rec)
	if err != nil {
		h.logger.Warn("ingest record failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// BatchRequest is the batch feed payload.
type BatchRequest struct {
	SourceSystem string   `json:"source_system"`
	Records      []Record `json:"records"`
}

// IngestBatch handles an Offermart or admin-upload batch. A repeated
// X-Idempotency-Key is rejected before any record is touched.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if len(req.Records) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "records required")
		return
	}

	if key := r.Header.Get("X-Idempotency-Key"); key != "" && h.idem != nil {
		source := req.SourceSystem
		if source == "" {
			source = "unknown"
		}
		if err := h.idem.CheckAndInsert(r.Context(), key, source); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	result := h.service.ProcessBatch(r.Context(), req.Records)
	h.logger.Info("batch ingested",
		slog.String("source", req.SourceSystem),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
	)
	httpx.JSON(w, http.StatusOK, result)
}

// maxUploadBytes caps batch file uploads at 32MB.
const maxUploadBytes = 32 << 20

// IngestUpload handles an xlsx or csv batch file. The file is parsed whole
// before any record is processed, so a malformed file rejects cleanly.
func (h *Handler) IngestUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "multipart form expected")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "unreadable file")
		return
	}

	records, err := ParseUpload(header.Filename, data)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if key := r.Header.Get("X-Idempotency-Key"); key != "" && h.idem != nil {
		source := r.FormValue("source_system")
		if source == "" {
			source = "upload"
		}
		if err := h.idem.CheckAndInsert(r.Context(), key, source); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	result := h.service.ProcessBatch(r.Context(), records)
	h.logger.Info("upload ingested",
		slog.String("filename", header.Filename),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
	)
	httpx.JSON(w, http.StatusOK, result)
}
