package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	RequestSeconds   *prometheus.HistogramVec
	RouteResults     *prometheus.CounterVec
	QuotesTotal      *prometheus.CounterVec
	InFlightQuotes   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ProviderRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_provider_requests_total",
			Help: "Total number of requests to external geo providers.",
		}, []string{"provider", "outcome"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_provider_request_duration_seconds",
			Help:    "Duration of requests to external geo providers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		RouteResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_route_results_total",
			Help: "Route results by originating provider, including the approximate fallback.",
		}, []string{"source"}),
		QuotesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_quotes_total",
			Help: "Total number of delivery quotes by final status.",
		}, []string{"status"}),
		InFlightQuotes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "delivery_quotes_in_flight",
			Help: "Current number of quote pipelines in flight.",
		}),
	}
}
