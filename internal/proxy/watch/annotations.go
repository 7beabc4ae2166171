// Package watch implements the proxy-side AnnotationsWatcher: it watches
// the local pod's own annotations for the controller-published endpoints
// list, and fetches arbitrary annotations from neighbor pods on demand.
// Informer plumbing is grounded on the teacher's internal/metadata.K8sWatcher
// (field-selector-scoped SharedInformerFactory + ResourceEventHandlerFuncs).
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// AnnotationsWatcher watches a single pod's own annotations and mirrors
// the endpoints annotation into the proxy main loop via onEndpointsChanged.
type AnnotationsWatcher struct {
	clientset kubernetes.Interface
	namespace string
	podName   string
	logger    *zap.Logger

	onEndpointsChanged func(raw []byte)

	mu              sync.Mutex
	lastAnnotations map[string]string

	cancel context.CancelFunc
}

// New creates an AnnotationsWatcher for the given pod.
func New(clientset kubernetes.Interface, namespace, podName string, logger *zap.Logger,
	onEndpointsChanged func(raw []byte)) *AnnotationsWatcher {
	return &AnnotationsWatcher{
		clientset:          clientset,
		namespace:          namespace,
		podName:            podName,
		logger:             logger,
		onEndpointsChanged: onEndpointsChanged,
		lastAnnotations:    make(map[string]string),
	}
}

// Run starts the informer and blocks until ctx is cancelled or Close is
// called.
func (w *AnnotationsWatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	factory := informers.NewSharedInformerFactoryWithOptions(
		w.clientset,
		30*time.Second,
		informers.WithNamespace(w.namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.FieldSelector = fmt.Sprintf("metadata.name=%s", w.podName)
		}),
	)

	podInformer := factory.Core().V1().Pods().Informer()
	_, err := podInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if pod, ok := obj.(*corev1.Pod); ok {
				w.onPodUpdate(pod)
			}
		},
		UpdateFunc: func(_, newObj interface{}) {
			if pod, ok := newObj.(*corev1.Pod); ok {
				w.onPodUpdate(pod)
			}
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("registering pod event handler: %w", err)
	}

	factory.Start(runCtx.Done())
	if !cache.WaitForCacheSync(runCtx.Done(), podInformer.HasSynced) {
		cancel()
		return fmt.Errorf("annotations watcher cache sync failed")
	}

	w.logger.Info("annotations watcher running", zap.String("pod", w.podName))
	<-runCtx.Done()
	return nil
}

// Close aborts the watch task, mirroring the source's Drop → aborted
// task semantics.
func (w *AnnotationsWatcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

func (w *AnnotationsWatcher) onPodUpdate(pod *corev1.Pod) {
	endpoints, hasEndpoints := pod.Annotations[constants.AnnotEndpoints]

	w.mu.Lock()
	prev, hadPrev := w.lastAnnotations[constants.AnnotEndpoints]
	changed := hasEndpoints && (!hadPrev || prev != endpoints)

	// Always refresh the cache, regardless of whether endpoints changed,
	// so a subsequent add_annot merges against the latest observed set.
	w.lastAnnotations = make(map[string]string, len(pod.Annotations))
	for k, v := range pod.Annotations {
		w.lastAnnotations[k] = v
	}
	w.mu.Unlock()

	if changed && w.onEndpointsChanged != nil {
		w.onEndpointsChanged([]byte(endpoints))
	}
}

// AddAnnot merges pairs into the local annotation cache and issues a
// strategic-merge patch of the pod's metadata. On patch failure, logs
// and retains the cache so the next write retries the merge.
func (w *AnnotationsWatcher) AddAnnot(ctx context.Context, pairs map[string]string) error {
	w.mu.Lock()
	for k, v := range pairs {
		w.lastAnnotations[k] = v
	}
	merged := make(map[string]string, len(w.lastAnnotations))
	for k, v := range w.lastAnnotations {
		merged[k] = v
	}
	w.mu.Unlock()

	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": merged,
		},
	}
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling annotation patch: %w", err)
	}

	_, err = w.clientset.CoreV1().Pods(w.namespace).Patch(
		ctx, w.podName, types.StrategicMergePatchType, patchBytes, metav1.PatchOptions{})
	if err != nil {
		w.logger.Warn("annotation patch failed, cache retained for retry", zap.Error(err))
		return fmt.Errorf("patching pod annotations: %w", err)
	}
	return nil
}

// FetchAnnotation fetches the named pod's given annotation and returns
// it as raw JSON. Satisfies proxy.NeighborFetcher. Callers must bound
// concurrency externally (the server's 2-permit semaphore).
func (w *AnnotationsWatcher) FetchAnnotation(ctx context.Context, podName, annotation string) (json.RawMessage, bool) {
	pod, err := w.clientset.CoreV1().Pods(w.namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		w.logger.Warn("neighbor pod fetch failed", zap.String("pod", podName), zap.Error(err))
		return nil, false
	}
	value, ok := pod.Annotations[annotation]
	if !ok {
		return nil, false
	}
	return json.RawMessage(value), true
}
