package policy

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

func TestHwOnlyNeverMutatesGraph(t *testing.T) {
	id := uuid.New()
	pods := map[uuid.UUID]*corev1.Pod{
		id: {
			ObjectMeta: metav1.ObjectMeta{
				Annotations: map[string]string{constants.AnnotHWInfo: `{"physical_cores":4}`},
			},
		},
	}

	p := NewHwOnly(zap.NewNop())
	g := graph.New()
	g.AddNode(id)

	if affected := p.PodAdded(g, pods, id); affected != nil {
		t.Fatalf("expected nil affected, got %v", affected)
	}
	if g.EdgeCount() != 0 || g.NodeCount() != 1 {
		t.Fatalf("HwOnly must never mutate the graph, got %d nodes %d edges", g.NodeCount(), g.EdgeCount())
	}
	if _, seen := p.alreadyAdded[id]; !seen {
		t.Fatalf("expected pod to be tracked as already added after PodAdded")
	}
}

func TestHwOnlyPodRemovedForgetsPod(t *testing.T) {
	id := uuid.New()
	p := NewHwOnly(zap.NewNop())
	p.alreadyAdded[id] = struct{}{}

	p.PodRemoved(graph.New(), map[uuid.UUID]*corev1.Pod{}, id, nil)

	if _, seen := p.alreadyAdded[id]; seen {
		t.Fatalf("expected pod to be forgotten after PodRemoved")
	}
}

func TestHwInfoAnnotationMissingPod(t *testing.T) {
	if _, ok := hwInfoAnnotation(map[uuid.UUID]*corev1.Pod{}, uuid.New()); ok {
		t.Fatalf("expected ok=false for a pod absent from the cache")
	}
}
