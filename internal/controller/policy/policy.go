// Package policy implements the controller-side graph policies: the
// callbacks a ServiceWatcher invokes whenever a pod becomes known,
// is updated, or disappears. Dynamic dispatch via interface
// satisfaction, same idiom as the proxy's routing policies.
package policy

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

// Policy reacts to pod-graph membership changes. Each callback
// returns the list of pod ids (other than the one the event is
// about) whose outgoing-neighbor list changed as a result, so the
// caller knows which annotations to republish.
type Policy interface {
	Name() string
	PodAdded(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID
	PodUpdated(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID
	PodRemoved(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID, incoming []uuid.UUID) []uuid.UUID
}
