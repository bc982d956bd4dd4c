// Package metrics registers the Prometheus instruments for the off-chain
// service. All instruments live in the default registry and are served by
// the /metrics endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offchain",
		Name:      "inbound_requests_total",
		Help:      "Inbound command requests by response status code.",
	}, []string{"code"})

	inboundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "offchain",
		Name:      "inbound_request_duration_seconds",
		Help:      "Inbound command processing duration.",
		Buckets:   prometheus.DefBuckets,
	})

	outboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offchain",
		Name:      "outbound_requests_total",
		Help:      "Outbound command requests by result.",
	}, []string{"result"})

	backgroundTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offchain",
		Name:      "background_tasks_total",
		Help:      "Background follow-up tasks executed by action.",
	}, []string{"action"})
)

// ObserveInbound records one processed inbound request.
func ObserveInbound(code int, elapsed time.Duration) {
	inboundRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	inboundDuration.Observe(elapsed.Seconds())
}

// CountOutbound records one outbound send attempt result.
func CountOutbound(result string) {
	outboundRequests.WithLabelValues(result).Inc()
}

// CountBackgroundTask records one executed background task.
func CountBackgroundTask(action string) {
	backgroundTasks.WithLabelValues(action).Inc()
}
