package watch

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/policy"
	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

func newTestServiceWatcher(pol policy.Policy, pods ...*corev1.Pod) (*ServiceWatcher, *fake.Clientset) {
	clientset := fake.NewSimpleClientset()
	for _, p := range pods {
		_, _ = clientset.CoreV1().Pods(p.Namespace).Create(context.Background(), p, metav1.CreateOptions{})
	}
	sw := &ServiceWatcher{
		serviceUID: uuid.New(),
		namespace:  "ns",
		clientset:  clientset,
		pol:        pol,
		logger:     zap.NewNop(),
		podGraph:   graph.New(),
		pods:       make(map[uuid.UUID]*corev1.Pod),
	}
	return sw, clientset
}

func newPod(name, ip string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "ns",
			UID:       k8stypes.UID(uuid.New().String()),
		},
		Status: corev1.PodStatus{PodIP: ip},
	}
}

func TestAddPodFirstSightingNotifiesSelf(t *testing.T) {
	pod := newPod("pod-a", "10.0.0.1")
	sw, clientset := newTestServiceWatcher(policy.NoOp{}, pod)

	if err := sw.AddPod(context.Background(), pod); err != nil {
		t.Fatalf("AddPod: %v", err)
	}

	updated, err := clientset.CoreV1().Pods("ns").Get(context.Background(), "pod-a", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching patched pod: %v", err)
	}
	if _, ok := updated.Annotations[constants.AnnotEndpoints]; !ok {
		t.Fatalf("expected a newly-ready pod to be notified of its own (self) endpoint, annotations=%v", updated.Annotations)
	}
}

func TestRemovePodNotifiesLostPredecessors(t *testing.T) {
	a := newPod("pod-a", "10.0.0.1")
	b := newPod("pod-b", "10.0.0.2")
	sw, clientset := newTestServiceWatcher(policy.NoOp{}, a, b)

	idA, _ := podUUID(a)
	idB, _ := podUUID(b)

	sw.pods[idA] = a
	sw.pods[idB] = b
	sw.podGraph.AddNode(idA)
	sw.podGraph.AddNode(idB)
	sw.podGraph.AddEdge(idA, idB)

	if err := sw.RemovePod(context.Background(), b); err != nil {
		t.Fatalf("RemovePod: %v", err)
	}

	if sw.podGraph.ContainsNode(idB) {
		t.Fatalf("expected removed pod's node to be gone from the graph")
	}
	if sw.podGraph.ContainsEdge(idA, idB) {
		t.Fatalf("expected the edge into the removed pod to be gone")
	}

	updatedA, err := clientset.CoreV1().Pods("ns").Get(context.Background(), "pod-a", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching pod-a: %v", err)
	}
	if _, ok := updatedA.Annotations[constants.AnnotEndpoints]; !ok {
		t.Fatalf("expected pod-a (the lost predecessor) to be re-notified after pod-b's removal")
	}
}

func TestRemovePodUnknownPodIsNoOp(t *testing.T) {
	pod := newPod("pod-a", "10.0.0.1")
	sw, _ := newTestServiceWatcher(policy.NoOp{}, pod)

	if err := sw.RemovePod(context.Background(), pod); err != nil {
		t.Fatalf("RemovePod on an unknown pod should be a no-op, got error: %v", err)
	}
}

func TestPodUUIDRejectsMissingUID(t *testing.T) {
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "no-uid"}}
	if _, err := podUUID(pod); err == nil {
		t.Fatalf("expected an error for a pod with no UID")
	}
}
