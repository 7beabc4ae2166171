// Package metrics defines the Prometheus self-metrics for both binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// latencyBuckets covers 100µs to 5s, tuned for in-fabric request latency.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
}

// Proxy holds all Prometheus metric instruments for the edge-proxy binary.
type Proxy struct {
	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	Hops            prometheus.Histogram
	EndpointCount   prometheus.Gauge
	NeighborFetches *prometheus.CounterVec
}

// NewProxy creates and registers the proxy's Prometheus metrics.
func NewProxy() *Proxy {
	return &Proxy{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: constants.ProxyMetricPrefix + "requests_total",
			Help: "Total inference requests handled, by policy and outcome.",
		}, []string{constants.LabelPolicy, constants.LabelOutcome}),

		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    constants.ProxyMetricPrefix + "request_latency_seconds",
			Help:    "End-to-end request latency as observed by the handling proxy.",
			Buckets: latencyBuckets,
		}, []string{constants.LabelOutcome}),

		Hops: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    constants.ProxyMetricPrefix + "request_hops",
			Help:    "Number of forwarding hops a request took before completion.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 16},
		}),

		EndpointCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: constants.ProxyMetricPrefix + "endpoints",
			Help: "Current number of known endpoints.",
		}),

		NeighborFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: constants.ProxyMetricPrefix + "neighbor_fetches_total",
			Help: "Total neighbor annotation fetches, by annotation and outcome.",
		}, []string{"annotation", constants.LabelOutcome}),
	}
}

// ObserveRequest records a completed request's policy, outcome and latency.
func (m *Proxy) ObserveRequest(policy, outcome string, latencySec float64, hops int) {
	m.RequestsTotal.WithLabelValues(policy, outcome).Inc()
	m.RequestLatency.WithLabelValues(outcome).Observe(latencySec)
	m.Hops.Observe(float64(hops))
}
