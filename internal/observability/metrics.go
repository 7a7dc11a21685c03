package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_requests_total",
			Help: "Total pricing tool requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_in_flight",
		Help: "In-flight HTTP requests",
	})
	CampaignMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_campaign_matches_total",
			Help: "Tool requests by match outcome",
		}, []string{"outcome"},
	)
	CatalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Catalog refresh attempts by outcome",
		}, []string{"outcome"},
	)
	CatalogAsOf = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_snapshot_as_of_seconds",
		Help: "Unix time of the currently served catalog snapshot",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, CampaignMatches, CatalogRefreshes, CatalogAsOf)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
