package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offercdp/offercdp/internal/customer"
	"github.com/offercdp/offercdp/internal/export"
	"github.com/offercdp/offercdp/internal/ingest"
	"github.com/offercdp/offercdp/internal/journey"
	"github.com/offercdp/offercdp/internal/observability"
	"github.com/offercdp/offercdp/internal/offer"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Pool            *pgxpool.Pool
	Metrics         *observability.Metrics
	IngestHandler   *ingest.Handler
	CustomerHandler *customer.Handler
	OfferHandler    *offer.Handler
	JourneyHandler  *journey.Handler
	ExportHandler   *export.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", params.IngestHandler.Ingest)
		r.Post("/ingest/batch", params.IngestHandler.IngestBatch)
		r.Post("/ingest/upload", params.IngestHandler.IngestUpload)

		r.Get("/customers/{id}", params.CustomerHandler.Get)
		r.Get("/customers/{id}/offers", params.OfferHandler.ListByCustomer)

		r.Get("/offers/{id}", params.OfferHandler.Get)
		r.Get("/offers/{id}/history", params.OfferHandler.History)

		r.Post("/journeys/{lan}/events", params.JourneyHandler.RecordEvent)
		r.Get("/journeys/{lan}", params.JourneyHandler.LatestStatus)

		r.Get("/export/campaign", params.ExportHandler.Campaign)
		r.Get("/export/campaign.xlsx", params.ExportHandler.CampaignWorkbook)
	})

	return r
}
