package reconcile

import (
	"context"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/watch"
)

func newEdgeService(name, selector string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": constants.CRGroup + "/" + constants.CRVersion,
		"kind":       "EdgeService",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "ns",
			"uid":       "11111111-1111-1111-1111-111111111111",
		},
		"spec": map[string]interface{}{
			"selector": selector,
		},
	}}
}

func newTestReconciler(t *testing.T, objs ...runtime.Object) (*Reconciler, dynamic.Interface) {
	t.Helper()
	scheme := runtime.NewScheme()
	gvrToKind := map[schema.GroupVersionResource]string{
		{Group: constants.CRGroup, Version: constants.CRVersion, Resource: "edgeservices"}: "EdgeServiceList",
	}
	dynClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToKind, objs...)

	mgr := watch.New(fake.NewSimpleClientset(), "noop", "", zap.NewNop(), nil)
	r := New(dynClient, "edgeservices", mgr, zap.NewNop(), nil)
	return r, dynClient
}

func TestReconcileAddsFinalizerAndSubmitsNewService(t *testing.T) {
	svc := newEdgeService("svc-a", "app=svc-a")
	r, dynClient := newTestReconciler(t, svc)

	err := r.reconcile(context.Background(), "ns", "svc-a", svc.DeepCopy())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	current, err := dynClient.Resource(r.gvr).Namespace("ns").Get(context.Background(), "svc-a", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching resource: %v", err)
	}
	if !hasFinalizer(current) {
		t.Fatalf("expected finalizer to be added, got %v", current.GetFinalizers())
	}
}

func TestReconcileMissingSelectorErrors(t *testing.T) {
	svc := newEdgeService("svc-a", "")
	delete(svc.Object["spec"].(map[string]interface{}), "selector")
	r, _ := newTestReconciler(t, svc)

	if err := r.reconcile(context.Background(), "ns", "svc-a", svc.DeepCopy()); err == nil {
		t.Fatalf("expected an error for a resource missing spec.selector")
	}
}

func TestReconcileDeletionRemovesFinalizer(t *testing.T) {
	svc := newEdgeService("svc-a", "app=svc-a")
	svc.SetFinalizers([]string{constants.FinalizerName})
	now := metav1.NewTime(time.Now())
	svc.SetDeletionTimestamp(&now)

	r, dynClient := newTestReconciler(t, svc)

	if err := r.reconcile(context.Background(), "ns", "svc-a", svc.DeepCopy()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	current, err := dynClient.Resource(r.gvr).Namespace("ns").Get(context.Background(), "svc-a", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching resource: %v", err)
	}
	if hasFinalizer(current) {
		t.Fatalf("expected finalizer to be removed on deletion, got %v", current.GetFinalizers())
	}
}

func TestHasFinalizerFalseWhenAbsent(t *testing.T) {
	svc := newEdgeService("svc-a", "app=svc-a")
	if hasFinalizer(svc) {
		t.Fatalf("expected hasFinalizer to be false for a resource with no finalizers")
	}
}
