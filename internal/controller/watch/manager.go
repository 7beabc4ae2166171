package watch

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/policy"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
)

// Manager owns the {service_id -> ServiceWatcher} map and is the only
// goroutine that ever reads or writes it; all access from other
// goroutines (the reconciler, each watcher's own pod-watch task, the
// graph-export HTTP handler) goes through Submit.
type Manager struct {
	clientset   kubernetes.Interface
	policyName  string
	graphPath   string
	logger      *zap.Logger
	metrics     *metrics.Controller
	msgs        chan Message
	serviceUIDs map[uuid.UUID]*ServiceWatcher
	onChanged   func(uuid.UUID)
}

// New builds a Manager. policyName/graphPath configure every
// ServiceWatcher's policy instance (one policy kind per controller
// process, matching the source's single-policy-type-parameter
// ServiceWatcher<T>).
func New(clientset kubernetes.Interface, policyName, graphPath string, logger *zap.Logger, m *metrics.Controller) *Manager {
	return &Manager{
		clientset:   clientset,
		policyName:  policyName,
		graphPath:   graphPath,
		logger:      logger,
		metrics:     m,
		msgs:        make(chan Message, constants.ControllerManagerBuffer),
		serviceUIDs: make(map[uuid.UUID]*ServiceWatcher),
	}
}

// OnGraphChanged registers a callback fired after every successful
// AddPod/RemovePod, used to drive the graph-export server's debug
// websocket stream. Must be called before Run.
func (m *Manager) OnGraphChanged(fn func(uuid.UUID)) {
	m.onChanged = fn
}

// Submit enqueues a message, blocking once the buffer is full, until
// ctx is cancelled.
func (m *Manager) Submit(ctx context.Context, msg Message) error {
	select {
	case m.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExportGraph is a convenience wrapper around the ExportGraph message
// for the graph-export HTTP handler.
func (m *Manager) ExportGraph(ctx context.Context, serviceUID uuid.UUID) (string, bool, error) {
	respond := make(chan exportResult, 1)
	if err := m.Submit(ctx, ExportGraph{ServiceUID: serviceUID, RespondTo: respond}); err != nil {
		return "", false, err
	}
	select {
	case res := <-respond:
		return res.dot, res.ok, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Run drains the message channel until ctx is cancelled, dispatching
// each message to its ServiceWatcher.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for _, sw := range m.serviceUIDs {
				sw.Close()
			}
			return nil
		case msg := <-m.msgs:
			m.handle(ctx, msg)
		}
	}
}

func (m *Manager) handle(ctx context.Context, msg Message) {
	switch v := msg.(type) {
	case NewService:
		m.handleNewService(ctx, v)
	case DeleteService:
		m.handleDeleteService(v)
	case PodReady:
		m.handlePodReady(ctx, v)
	case PodUnready:
		m.handlePodUnready(ctx, v)
	case ExportGraph:
		m.handleExportGraph(v)
	default:
		m.logger.Warn("unknown manager message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (m *Manager) handleNewService(ctx context.Context, v NewService) {
	if _, exists := m.serviceUIDs[v.UID]; exists {
		return
	}
	pol, err := policy.New(m.policyName, m.graphPath, m.logger)
	if err != nil {
		m.logger.Error("building controller policy failed", zap.Error(err))
		return
	}
	sw := newServiceWatcher(ctx, v.UID, m.clientset, v.Namespace, v.Selector, pol, m.logger.Named(v.UID.String()), m.msgs)
	m.serviceUIDs[v.UID] = sw
	if m.metrics != nil {
		m.metrics.ActiveWatchers.Inc()
	}
	m.logger.Info("started service watcher", zap.String("service", v.UID.String()), zap.String("selector", v.Selector))
}

func (m *Manager) handleDeleteService(v DeleteService) {
	sw, ok := m.serviceUIDs[v.UID]
	if !ok {
		return
	}
	sw.Close()
	delete(m.serviceUIDs, v.UID)
	if m.metrics != nil {
		m.metrics.ActiveWatchers.Dec()
	}
	m.logger.Info("stopped service watcher", zap.String("service", v.UID.String()))
}

func (m *Manager) handlePodReady(ctx context.Context, v PodReady) {
	sw, ok := m.serviceUIDs[v.ServiceUID]
	if !ok {
		return
	}
	if err := sw.AddPod(ctx, v.Pod); err != nil {
		m.logger.Error("add_pod failed", zap.Error(err))
		return
	}
	if m.metrics != nil {
		m.metrics.GraphNodes.WithLabelValues(v.ServiceUID.String()).Set(float64(sw.podGraph.NodeCount()))
		m.metrics.GraphEdges.WithLabelValues(v.ServiceUID.String()).Set(float64(sw.podGraph.EdgeCount()))
		m.metrics.AnnotationPatches.WithLabelValues("success").Inc()
	}
	if m.onChanged != nil {
		m.onChanged(v.ServiceUID)
	}
}

func (m *Manager) handlePodUnready(ctx context.Context, v PodUnready) {
	sw, ok := m.serviceUIDs[v.ServiceUID]
	if !ok {
		return
	}
	if err := sw.RemovePod(ctx, v.Pod); err != nil {
		m.logger.Error("remove_pod failed", zap.Error(err))
		return
	}
	if m.metrics != nil {
		m.metrics.GraphNodes.WithLabelValues(v.ServiceUID.String()).Set(float64(sw.podGraph.NodeCount()))
		m.metrics.GraphEdges.WithLabelValues(v.ServiceUID.String()).Set(float64(sw.podGraph.EdgeCount()))
	}
	if m.onChanged != nil {
		m.onChanged(v.ServiceUID)
	}
}

func (m *Manager) handleExportGraph(v ExportGraph) {
	sw, ok := m.serviceUIDs[v.ServiceUID]
	if !ok {
		v.RespondTo <- exportResult{ok: false}
		return
	}
	v.RespondTo <- exportResult{dot: sw.ExportGraph(), ok: true}
}
