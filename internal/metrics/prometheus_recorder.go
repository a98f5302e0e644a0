package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once sync.Once

	taskQueueDepth    prom.Gauge
	taskDuration      *prom.HistogramVec
	engineInvocations *prom.CounterVec
	apiRequests       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics
// against reg (idempotent per instance). A nil reg gets a fresh private
// registry, matching the teacher's fallback.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.taskQueueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "henbackup",
			Name:      "task_queue_depth",
			Help:      "Number of tasks currently waiting in the task manager's pending list",
		})
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "henbackup",
			Name:      "task_duration_seconds",
			Help:      "Duration of a completed task by kind",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"})
		pr.engineInvocations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "henbackup",
			Name:      "engine_invocations_total",
			Help:      "Snapshot engine subprocess invocations by exit status",
		}, []string{"status"})
		pr.apiRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "henbackup",
			Name:      "api_requests_total",
			Help:      "Control API requests by method and HTTP status code",
		}, []string{"method", "status"})
		reg.MustRegister(pr.taskQueueDepth, pr.taskDuration, pr.engineInvocations, pr.apiRequests)
	})
	return pr
}

func (p *PrometheusRecorder) SetTaskQueueDepth(n int) {
	if p == nil || p.taskQueueDepth == nil {
		return
	}
	p.taskQueueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveTaskDuration(kind string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncEngineInvocation(status string) {
	if p == nil || p.engineInvocations == nil {
		return
	}
	p.engineInvocations.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncAPIRequest(method string, statusCode int) {
	if p == nil || p.apiRequests == nil {
		return
	}
	p.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}
