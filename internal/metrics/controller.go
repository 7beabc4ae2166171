package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// Controller holds all Prometheus metric instruments for the
// edge-controller binary. This is a supplemental observability surface,
// not part of the routing-fabric contract itself.
type Controller struct {
	ReconcilesTotal     *prometheus.CounterVec
	ActiveWatchers      prometheus.Gauge
	GraphNodes          *prometheus.GaugeVec
	GraphEdges          *prometheus.GaugeVec
	AnnotationPatches   *prometheus.CounterVec
}

// NewController creates and registers the controller's Prometheus metrics.
func NewController() *Controller {
	return &Controller{
		ReconcilesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: constants.ControllerMetricPrefix + "reconciles_total",
			Help: "Total reconcile events processed, by event and outcome.",
		}, []string{"event", constants.LabelOutcome}),

		ActiveWatchers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: constants.ControllerMetricPrefix + "active_service_watchers",
			Help: "Number of services currently being watched.",
		}),

		GraphNodes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: constants.ControllerMetricPrefix + "graph_nodes",
			Help: "Number of ready pods currently in a service's graph.",
		}, []string{constants.LabelService}),

		GraphEdges: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: constants.ControllerMetricPrefix + "graph_edges",
			Help: "Number of directed edges currently in a service's graph.",
		}, []string{constants.LabelService}),

		AnnotationPatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: constants.ControllerMetricPrefix + "annotation_patches_total",
			Help: "Total pod annotation patches issued, by outcome.",
		}, []string{constants.LabelOutcome}),
	}
}
