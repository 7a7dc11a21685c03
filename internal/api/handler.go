package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/campaign"
	"agent-pricing-engine/internal/catalog"
	"agent-pricing-engine/internal/engine"
	"agent-pricing-engine/internal/observability"
)

type Handler struct {
	Store campaign.AdminStore
	Cache *catalog.Cache
}

func NewHandler(store campaign.AdminStore, cache *catalog.Cache) *Handler {
	return &Handler{Store: store, Cache: cache}
}

type errResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func renderErr(w http.ResponseWriter, r *http.Request, status int, kind string, retryable bool) {
	render.Status(r, status)
	render.JSON(w, r, errResponse{Error: kind, Retryable: retryable})
}

type toolResponse struct {
	Products     []engine.PricedProduct `json:"products"`
	CampaignID   *string                `json:"campaign_id"`
	Personalized bool                   `json:"personalized"`
	Degraded     bool                   `json:"degraded"`
	AsOf         time.Time              `json:"as_of"`
}

// GetProducts is the tool adapter entry point: build the request context
// from inbound headers, resolve campaigns, and return the personalized
// product list, or the full undiscounted catalog when nothing matches.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r)

	snap, status, err := h.Cache.Get()
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "catalog_unavailable", true)
		return
	}

	campaigns, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		// Fail fast: an unavailable store must not masquerade as "no match".
		log.Error().Err(err).Msg("list campaigns")
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}

	resolved := engine.Resolve(campaigns, rctx)
	resp := toolResponse{Degraded: status.Degraded, AsOf: snap.AsOf}
	if len(resolved) == 0 {
		observability.CampaignMatches.WithLabelValues("none").Inc()
		resp.Products = engine.Undiscounted(snap)
	} else {
		observability.CampaignMatches.WithLabelValues("matched").Inc()
		resp.Products = engine.Personalize(resolved, snap)
		resp.CampaignID = &resolved[0].ID
		resp.Personalized = true
	}

	render.JSON(w, r, resp)
}

type discountRequest struct {
	ProductID int64 `json:"product_id"`
}

type discountResponse struct {
	Product            engine.PricedProduct `json:"product"`
	DiscountCode       *string              `json:"discount_code"`
	DiscountPercentage float64              `json:"discount_percentage"`
	CampaignID         string               `json:"campaign_id"`
	Degraded           bool                 `json:"degraded,omitempty"`
}

// GetDiscount returns the best discount for one product under the caller's
// resolved campaigns.
func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErr(w, r, http.StatusBadRequest, "invalid_request", false)
		return
	}

	rctx := requestContext(r)

	snap, status, err := h.Cache.Get()
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "catalog_unavailable", true)
		return
	}

	campaigns, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list campaigns")
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}

	resolved := engine.Resolve(campaigns, rctx)
	if len(resolved) == 0 {
		observability.CampaignMatches.WithLabelValues("none").Inc()
		renderErr(w, r, http.StatusNotFound, "no_discount_available", false)
		return
	}
	observability.CampaignMatches.WithLabelValues("matched").Inc()

	for _, p := range engine.Personalize(resolved, snap) {
		if p.ID == req.ProductID {
			render.JSON(w, r, discountResponse{
				Product:            p,
				DiscountCode:       p.AppliedDiscountCode,
				DiscountPercentage: p.DiscountPercentage,
				CampaignID:         resolved[0].ID,
				Degraded:           status.Degraded,
			})
			return
		}
	}
	renderErr(w, r, http.StatusNotFound, "product_not_found", false)
}

// RefreshCatalog triggers an on-demand snapshot refresh.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.Cache.Refresh(r.Context()); err != nil {
		renderErr(w, r, http.StatusBadGateway, "catalog_refresh_failed", true)
		return
	}
	_, status, _ := h.Cache.Get()
	render.JSON(w, r, map[string]any{"status": "refreshed", "as_of": status.AsOf})
}

// Health exposes cache freshness and last-refresh outcome.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, status, err := h.Cache.Get()

	overall := "ok"
	code := http.StatusOK
	switch {
	case err != nil:
		overall = "unavailable"
		code = http.StatusServiceUnavailable
	case status.Degraded:
		overall = "degraded"
	}

	render.Status(r, code)
	render.JSON(w, r, map[string]any{"status": overall, "catalog": status})
}

// --- Campaign CRUD (admin surface) ---

type campaignResponse struct {
	campaign.Campaign
	EligibleAgents []string `json:"eligible_agents,omitempty"`
}

func enrich(c campaign.Campaign) campaignResponse {
	return campaignResponse{Campaign: c, EligibleAgents: engine.EligibleAgents(c.HeaderRules)}
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}
	out := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, enrich(c))
	}
	render.JSON(w, r, map[string]any{"campaigns": out})
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, campaign.ErrNotFound) {
		renderErr(w, r, http.StatusNotFound, "campaign_not_found", false)
		return
	}
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}
	render.JSON(w, r, enrich(c))
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var c campaign.Campaign
	if err := render.DecodeJSON(r.Body, &c); err != nil {
		renderErr(w, r, http.StatusBadRequest, "invalid_campaign", false)
		return
	}
	if err := c.Validate(); err != nil {
		log.Debug().Err(err).Msg("reject campaign create")
		renderErr(w, r, http.StatusUnprocessableEntity, err.Error(), false)
		return
	}
	created, err := h.Store.CreateCampaign(r.Context(), c)
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, enrich(created))
}

func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var c campaign.Campaign
	if err := render.DecodeJSON(r.Body, &c); err != nil {
		renderErr(w, r, http.StatusBadRequest, "invalid_campaign", false)
		return
	}
	c.ID = chi.URLParam(r, "id")
	if err := c.Validate(); err != nil {
		renderErr(w, r, http.StatusUnprocessableEntity, err.Error(), false)
		return
	}
	updated, err := h.Store.UpdateCampaign(r.Context(), c)
	if errors.Is(err, campaign.ErrNotFound) {
		renderErr(w, r, http.StatusNotFound, "campaign_not_found", false)
		return
	}
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}
	render.JSON(w, r, enrich(updated))
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	err := h.Store.DeleteCampaign(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, campaign.ErrNotFound) {
		renderErr(w, r, http.StatusNotFound, "campaign_not_found", false)
		return
	}
	if err != nil {
		renderErr(w, r, http.StatusServiceUnavailable, "campaign_store_unavailable", true)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// requestContext builds the engine's request context from the inbound call:
// all headers (first value each), the optional identified user email, the
// resolved client IP, and the current time.
func requestContext(r *http.Request) engine.RequestContext {
	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}

	ip := r.RemoteAddr // middleware.RealIP rewrites this from X-Forwarded-For
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	return engine.NewRequestContext(headers, r.Header.Get("X-User-Email"), ip, time.Now())
}
