package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving the metrics registered against
// reg. A nil reg falls back to prometheus.DefaultRegisterer, matching the
// teacher's internal/metrics/prometheus_http.go fallback.
//
// The caller must pass the same registry here as was given to
// NewPrometheusRecorder, or the scrape endpoint will serve an empty set of
// henbackup_* metrics.
func Handler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
