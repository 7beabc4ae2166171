package policy

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

// HwOnly never touches the graph; it only logs the hw_info annotation
// of each pod the first time it is seen, tracking which pods it has
// already logged.
type HwOnly struct {
	logger       *zap.Logger
	alreadyAdded map[uuid.UUID]struct{}
}

// NewHwOnly builds an HwOnly policy.
func NewHwOnly(logger *zap.Logger) *HwOnly {
	return &HwOnly{logger: logger, alreadyAdded: make(map[uuid.UUID]struct{})}
}

func (p *HwOnly) Name() string { return "hw_only" }

func (p *HwOnly) PodAdded(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	p.logger.Info("pod added", zap.String("pod", id.String()))
	if hwInfo, ok := hwInfoAnnotation(pods, id); ok {
		p.alreadyAdded[id] = struct{}{}
		p.logger.Info("hw_info observed", zap.String("pod", id.String()), zap.String("hw_info", hwInfo))
	} else {
		p.logger.Warn("pod missing hw_info annotation", zap.String("pod", id.String()))
	}
	return nil
}

func (p *HwOnly) PodUpdated(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	if _, seen := p.alreadyAdded[id]; !seen {
		p.logger.Info("pod updated", zap.String("pod", id.String()))
	}
	return nil
}

func (p *HwOnly) PodRemoved(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID, incoming []uuid.UUID) []uuid.UUID {
	p.logger.Info("pod removed", zap.String("pod", id.String()))
	delete(p.alreadyAdded, id)
	return nil
}

func hwInfoAnnotation(pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) (string, bool) {
	pod, ok := pods[id]
	if !ok {
		return "", false
	}
	hwInfo, ok := pod.Annotations[constants.AnnotHWInfo]
	return hwInfo, ok
}
