package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agent-pricing-engine/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/v1/tools/get-products", h.GetProducts)
	r.Post("/v1/tools/get-discount", h.GetDiscount)

	r.Route("/v1/campaigns", func(r chi.Router) {
		r.Get("/", h.ListCampaigns)
		r.Post("/", h.CreateCampaign)
		r.Get("/{id}", h.GetCampaign)
		r.Put("/{id}", h.UpdateCampaign)
		r.Delete("/{id}", h.DeleteCampaign)
	})

	r.Post("/v1/catalog/refresh", h.RefreshCatalog)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
