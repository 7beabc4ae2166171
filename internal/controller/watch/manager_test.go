package watch

import (
	"context"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestManagerLifecycle(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	mgr := New(clientset, "noop", "", zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	serviceUID := uuid.New()
	if err := mgr.Submit(ctx, NewService{UID: serviceUID, Namespace: "ns", Selector: "svc-a"}); err != nil {
		t.Fatalf("Submit(NewService): %v", err)
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "pod-a", Namespace: "ns", UID: k8stypes.UID(uuid.New().String())},
		Status:     corev1.PodStatus{PodIP: "10.0.0.1"},
	}
	if _, err := clientset.CoreV1().Pods("ns").Create(context.Background(), pod, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seeding pod: %v", err)
	}
	if err := mgr.Submit(ctx, PodReady{ServiceUID: serviceUID, Pod: pod}); err != nil {
		t.Fatalf("Submit(PodReady): %v", err)
	}

	// Give Run's single goroutine a chance to drain both messages
	// before asking for the graph.
	deadline := time.After(2 * time.Second)
	for {
		exportCtx, exportCancel := context.WithTimeout(ctx, 200*time.Millisecond)
		got, ok, err := mgr.ExportGraph(exportCtx, serviceUID)
		exportCancel()
		if err == nil && ok && strings.Contains(got, string(pod.UID)) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("graph never contained the ready pod; last export ok=%v err=%v dot=%q", ok, err, got)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := mgr.Submit(ctx, DeleteService{UID: serviceUID}); err != nil {
		t.Fatalf("Submit(DeleteService): %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after context cancellation")
	}
}

func TestManagerExportGraphUnknownService(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	mgr := New(clientset, "noop", "", zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	_, ok, err := mgr.ExportGraph(ctx, uuid.New())
	if err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a service with no watcher")
	}
}
