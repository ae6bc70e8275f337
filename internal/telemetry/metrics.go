// Package telemetry turns ledger operation records and gateway calls into
// zap log entries and Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "escrow"

// Metrics holds the process collectors. Register them once per registry.
type Metrics struct {
	operations      *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Ledger operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_requests_total",
				Help:      "Settlement gateway calls by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Settlement gateway call latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
	}
	for _, collector := range []prometheus.Collector{metrics.operations, metrics.gatewayRequests, metrics.gatewayDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

// ObserveGatewayCall records one settlement provider call.
func (metrics *Metrics) ObserveGatewayCall(operation string, outcome string, duration time.Duration) {
	metrics.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	metrics.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (metrics *Metrics) countOperation(operation string, status string) {
	metrics.operations.WithLabelValues(operation, status).Inc()
}
