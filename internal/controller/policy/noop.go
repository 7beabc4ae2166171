package policy

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

// NoOp never mutates the graph and never reports affected pods.
type NoOp struct{}

func (NoOp) Name() string { return "noop" }

func (NoOp) PodAdded(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	return nil
}

func (NoOp) PodUpdated(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	return nil
}

func (NoOp) PodRemoved(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID, incoming []uuid.UUID) []uuid.UUID {
	return nil
}
