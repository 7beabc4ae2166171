package watch

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

func newTestWatcher(onChanged func([]byte)) (*AnnotationsWatcher, *fake.Clientset) {
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "pod-a", Namespace: "ns"},
	})
	w := New(clientset, "ns", "pod-a", zap.NewNop(), onChanged)
	return w, clientset
}

func TestOnPodUpdateFiresOnlyWhenEndpointsChange(t *testing.T) {
	var fired [][]byte
	w, _ := newTestWatcher(func(raw []byte) { fired = append(fired, raw) })

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Annotations: map[string]string{constants.AnnotEndpoints: `[{"uuid":"a"}]`},
	}}
	w.onPodUpdate(pod)
	if len(fired) != 1 {
		t.Fatalf("expected one callback after first sighting, got %d", len(fired))
	}

	// Same value again: no callback.
	w.onPodUpdate(pod)
	if len(fired) != 1 {
		t.Fatalf("expected no callback for an unchanged endpoints annotation, got %d total", len(fired))
	}

	// Different value: fires again.
	pod2 := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Annotations: map[string]string{constants.AnnotEndpoints: `[{"uuid":"b"}]`},
	}}
	w.onPodUpdate(pod2)
	if len(fired) != 2 {
		t.Fatalf("expected a callback after endpoints changed, got %d total", len(fired))
	}
}

func TestOnPodUpdateRefreshesCacheWithoutEndpointsKey(t *testing.T) {
	w, _ := newTestWatcher(nil)

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Annotations: map[string]string{"some/other-key": "v1"},
	}}
	w.onPodUpdate(pod)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastAnnotations["some/other-key"] != "v1" {
		t.Fatalf("expected cache to refresh even without an endpoints annotation present")
	}
}

func TestAddAnnotMergesAndPatches(t *testing.T) {
	w, clientset := newTestWatcher(nil)

	if err := w.AddAnnot(context.Background(), map[string]string{"hw_info": `{"gpus":[]}`}); err != nil {
		t.Fatalf("AddAnnot: %v", err)
	}

	pod, err := clientset.CoreV1().Pods("ns").Get(context.Background(), "pod-a", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching patched pod: %v", err)
	}
	if pod.Annotations["hw_info"] != `{"gpus":[]}` {
		t.Fatalf("expected hw_info annotation to be patched, got %v", pod.Annotations)
	}

	if err := w.AddAnnot(context.Background(), map[string]string{"another": "v"}); err != nil {
		t.Fatalf("AddAnnot (second merge): %v", err)
	}
	pod, _ = clientset.CoreV1().Pods("ns").Get(context.Background(), "pod-a", metav1.GetOptions{})
	if pod.Annotations["hw_info"] != `{"gpus":[]}` || pod.Annotations["another"] != "v" {
		t.Fatalf("expected both annotations to survive the merge, got %v", pod.Annotations)
	}
}

func TestFetchAnnotationMissingKey(t *testing.T) {
	w, _ := newTestWatcher(nil)
	if _, ok := w.FetchAnnotation(context.Background(), "pod-a", "missing"); ok {
		t.Fatalf("expected ok=false for a missing annotation")
	}
}

func TestFetchAnnotationUnknownPod(t *testing.T) {
	w, _ := newTestWatcher(nil)
	if _, ok := w.FetchAnnotation(context.Background(), "does-not-exist", "anything"); ok {
		t.Fatalf("expected ok=false for an unknown pod")
	}
}
