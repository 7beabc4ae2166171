// Package reconcile implements the finalizer-based reconciliation loop
// over the EdgeService/TritonService custom resource. client-go's
// runtime has no controller-runtime-style finalizer helper (that's
// this corpus's one ready-made gap — see DESIGN.md), so the
// add/remove-finalizer dance is hand-rolled over
// retry.RetryOnConflict, the same pattern client-go itself recommends
// for conflict-prone updates.
package reconcile

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/retry"
	"k8s.io/client-go/util/workqueue"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/watch"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
)

// Reconciler watches one custom-resource kind (by plural resource
// name) and drives the WatcherManager's NewService/DeleteService
// lifecycle via its finalizer.
type Reconciler struct {
	dynamicClient dynamic.Interface
	gvr           schema.GroupVersionResource
	manager       *watch.Manager
	logger        *zap.Logger
	metrics       *metrics.Controller
	queue         workqueue.DelayingInterface
}

// New builds a Reconciler for the given plural resource name (e.g.
// "edgeservices" or "tritonservices") in group/version constants.CRGroup/constants.CRVersion.
func New(dynamicClient dynamic.Interface, resource string, manager *watch.Manager, logger *zap.Logger, m *metrics.Controller) *Reconciler {
	return &Reconciler{
		dynamicClient: dynamicClient,
		gvr: schema.GroupVersionResource{
			Group:    constants.CRGroup,
			Version:  constants.CRVersion,
			Resource: resource,
		},
		manager: manager,
		logger:  logger,
		metrics: m,
		queue:   workqueue.NewNamedDelayingQueue(resource),
	}
}

// Run starts the informer and the work queue's single worker loop
// until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	factory := dynamicinformer.NewDynamicSharedInformerFactory(r.dynamicClient, 0)
	informer := factory.ForResource(r.gvr).Informer()

	enqueue := func(obj interface{}) {
		key, err := cache.MetaNamespaceKeyFunc(obj)
		if err != nil {
			r.logger.Error("computing reconcile key failed", zap.Error(err))
			return
		}
		r.queue.Add(key)
	}
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    enqueue,
		UpdateFunc: func(_, newObj interface{}) { enqueue(newObj) },
		DeleteFunc: enqueue,
	})
	if err != nil {
		return fmt.Errorf("registering reconcile event handler: %w", err)
	}

	factory.Start(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), informer.HasSynced) {
		return fmt.Errorf("reconciler cache sync failed for %s", r.gvr.Resource)
	}

	go r.runWorker(ctx, informer)
	<-ctx.Done()
	r.queue.ShutDown()
	return nil
}

func (r *Reconciler) runWorker(ctx context.Context, informer cache.SharedIndexInformer) {
	for {
		key, shutdown := r.queue.Get()
		if shutdown {
			return
		}
		r.processKey(ctx, informer, key.(string))
		r.queue.Done(key)
	}
}

func (r *Reconciler) processKey(ctx context.Context, informer cache.SharedIndexInformer, key string) {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		r.logger.Error("invalid reconcile key", zap.String("key", key), zap.Error(err))
		return
	}

	obj, exists, err := informer.GetStore().GetByKey(key)
	if err != nil {
		r.logger.Error("fetching object from store failed", zap.String("key", key), zap.Error(err))
		r.requeueError(key)
		return
	}
	if !exists {
		return
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		r.logger.Error("unexpected store object type", zap.String("key", key))
		return
	}

	if err := r.reconcile(ctx, namespace, name, u); err != nil {
		r.logger.Error("reconcile failed", zap.String("key", key), zap.Error(err))
		if r.metrics != nil {
			r.metrics.ReconcilesTotal.WithLabelValues("apply", "error").Inc()
		}
		r.requeueError(key)
		return
	}
	if r.metrics != nil {
		r.metrics.ReconcilesTotal.WithLabelValues("apply", "success").Inc()
	}
}

func (r *Reconciler) requeueError(key string) {
	r.queue.AddAfter(key, constants.ReconcileErrorRequeue)
}

func (r *Reconciler) reconcile(ctx context.Context, namespace, name string, u *unstructured.Unstructured) error {
	uid, err := uuid.Parse(string(u.GetUID()))
	if err != nil {
		return fmt.Errorf("parsing resource UID %q: %w", u.GetUID(), err)
	}

	if u.GetDeletionTimestamp() != nil {
		if err := r.manager.Submit(ctx, watch.DeleteService{UID: uid}); err != nil {
			return fmt.Errorf("submitting DeleteService: %w", err)
		}
		return r.removeFinalizer(ctx, namespace, name)
	}

	if !hasFinalizer(u) {
		if err := r.addFinalizer(ctx, namespace, name); err != nil {
			return fmt.Errorf("adding finalizer: %w", err)
		}
	}

	selector, found, err := unstructured.NestedString(u.Object, "spec", "selector")
	if err != nil || !found {
		return fmt.Errorf("resource %s/%s missing spec.selector", namespace, name)
	}

	if err := r.manager.Submit(ctx, watch.NewService{UID: uid, Namespace: namespace, Selector: selector}); err != nil {
		return fmt.Errorf("submitting NewService: %w", err)
	}
	r.queue.AddAfter(fmt.Sprintf("%s/%s", namespace, name), constants.ReconcileApplyRequeue)
	return nil
}

func hasFinalizer(u *unstructured.Unstructured) bool {
	for _, f := range u.GetFinalizers() {
		if f == constants.FinalizerName {
			return true
		}
	}
	return false
}

func (r *Reconciler) addFinalizer(ctx context.Context, namespace, name string) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := r.dynamicClient.Resource(r.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return err
		}
		finalizers := current.GetFinalizers()
		for _, f := range finalizers {
			if f == constants.FinalizerName {
				return nil
			}
		}
		current.SetFinalizers(append(finalizers, constants.FinalizerName))
		_, err = r.dynamicClient.Resource(r.gvr).Namespace(namespace).Update(ctx, current, metav1.UpdateOptions{})
		return err
	})
}

func (r *Reconciler) removeFinalizer(ctx context.Context, namespace, name string) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := r.dynamicClient.Resource(r.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return err
		}
		finalizers := current.GetFinalizers()
		kept := finalizers[:0]
		for _, f := range finalizers {
			if f != constants.FinalizerName {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(finalizers) {
			return nil
		}
		current.SetFinalizers(kept)
		_, err = r.dynamicClient.Resource(r.gvr).Namespace(namespace).Update(ctx, current, metav1.UpdateOptions{})
		return err
	})
}
