// Package watch implements the controller-side pod-graph manager: a
// per-service ServiceWatcher owning the pod-membership map, the
// directed pod graph and a policy instance, plus a WatcherManager
// that owns the {service_id -> ServiceWatcher} map and routes
// messages to it. Grounded directly on the source's
// endpoint_watcher/service_watcher.rs.
package watch

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/policy"
	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

const labelName = "edgeservices.prueba.ucm.es"

type neighbor struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// ServiceWatcher owns one service's pod graph, pod membership and
// policy instance. It is mutated only by its owning WatcherManager
// goroutine — never concurrently.
type ServiceWatcher struct {
	serviceUID uuid.UUID
	namespace  string
	clientset  kubernetes.Interface
	pol        policy.Policy
	logger     *zap.Logger

	podGraph *graph.DiGraph
	pods     map[uuid.UUID]*corev1.Pod

	cancel context.CancelFunc
}

// newServiceWatcher constructs a ServiceWatcher and starts its
// background pod-watch task, which forwards PodReady/PodUnready
// messages onto out.
func newServiceWatcher(ctx context.Context, serviceUID uuid.UUID, clientset kubernetes.Interface, namespace, selector string,
	pol policy.Policy, logger *zap.Logger, out chan<- Message) *ServiceWatcher {
	watchCtx, cancel := context.WithCancel(ctx)
	sw := &ServiceWatcher{
		serviceUID: serviceUID,
		namespace:  namespace,
		clientset:  clientset,
		pol:        pol,
		logger:     logger,
		podGraph:   graph.New(),
		pods:       make(map[uuid.UUID]*corev1.Pod),
		cancel:     cancel,
	}
	go sw.runPodWatch(watchCtx, selector, out)
	return sw
}

func (sw *ServiceWatcher) runPodWatch(ctx context.Context, selector string, out chan<- Message) {
	label := fmt.Sprintf("%s=%s", labelName, selector)
	factory := informers.NewSharedInformerFactoryWithOptions(
		sw.clientset,
		0,
		informers.WithNamespace(sw.namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = label
		}),
	)
	podInformer := factory.Core().V1().Pods().Informer()

	handler := func(obj interface{}) {
		pod, ok := obj.(*corev1.Pod)
		if !ok {
			return
		}
		msg := Message(PodUnready{ServiceUID: sw.serviceUID, Pod: pod})
		if podReady(pod) {
			msg = PodReady{ServiceUID: sw.serviceUID, Pod: pod}
		}
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}

	_, err := podInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    handler,
		UpdateFunc: func(_, newObj interface{}) { handler(newObj) },
		DeleteFunc: func(obj interface{}) {
			if pod, ok := obj.(*corev1.Pod); ok {
				select {
				case out <- PodUnready{ServiceUID: sw.serviceUID, Pod: pod}:
				case <-ctx.Done():
				}
			}
		},
	})
	if err != nil {
		sw.logger.Error("registering pod watch handler failed", zap.String("label", label), zap.Error(err))
		return
	}

	sw.logger.Info("starting pod watch", zap.String("label", label))
	factory.Start(ctx.Done())
	cache.WaitForCacheSync(ctx.Done(), podInformer.HasSynced)
	<-ctx.Done()
	sw.logger.Info("pod watch stopped", zap.String("label", label))
}

func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// AddPod implements add_pod: insert-or-update the pod, invoke the
// policy, and republish annotations for every affected pod.
func (sw *ServiceWatcher) AddPod(ctx context.Context, pod *corev1.Pod) error {
	id, err := podUUID(pod)
	if err != nil {
		return err
	}

	var affected []uuid.UUID
	if _, known := sw.pods[id]; !known {
		sw.pods[id] = pod
		sw.podGraph.AddNode(id)
		affected = sw.pol.PodAdded(sw.podGraph, sw.pods, id)
		affected = append(affected, id)
	} else {
		sw.pods[id] = pod
		affected = sw.pol.PodUpdated(sw.podGraph, sw.pods, id)
	}

	sw.notifyPods(ctx, affected)
	return nil
}

// RemovePod implements remove_pod: drop the node (purging incident
// edges), notify lost predecessors, then run the policy callback.
func (sw *ServiceWatcher) RemovePod(ctx context.Context, pod *corev1.Pod) error {
	id, err := podUUID(pod)
	if err != nil {
		return err
	}

	if _, known := sw.pods[id]; !known {
		return nil
	}

	incoming := sw.podGraph.Predecessors(id)
	delete(sw.pods, id)
	sw.podGraph.RemoveNode(id)
	sw.notifyPods(ctx, incoming)

	affected := sw.pol.PodRemoved(sw.podGraph, sw.pods, id, incoming)
	sw.notifyPods(ctx, affected)
	return nil
}

// ExportGraph returns the DOT serialization of the live pod graph.
func (sw *ServiceWatcher) ExportGraph() string {
	return sw.podGraph.DOT()
}

// Close aborts the pod-watch task.
func (sw *ServiceWatcher) Close() {
	sw.cancel()
}

func (sw *ServiceWatcher) notifyPods(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		pod, ok := sw.pods[id]
		if !ok {
			continue
		}
		sw.notifyPod(ctx, id, pod)
	}
}

func (sw *ServiceWatcher) notifyPod(ctx context.Context, id uuid.UUID, pod *corev1.Pod) {
	neighbors := make([]neighbor, 0, len(sw.podGraph.OutNeighbors(id))+1)
	for _, nid := range sw.podGraph.OutNeighbors(id) {
		np, ok := sw.pods[nid]
		if !ok || np.Status.PodIP == "" {
			continue
		}
		neighbors = append(neighbors, neighbor{UUID: nid.String(), Name: np.Name, IP: np.Status.PodIP})
	}
	// A pod always includes itself, so a singleton pod is a valid
	// routing target (local execution).
	neighbors = append(neighbors, neighbor{UUID: id.String(), Name: pod.Name, IP: pod.Status.PodIP})

	payload, err := json.MarshalIndent(neighbors, "", "  ")
	if err != nil {
		sw.logger.Error("marshaling endpoints payload failed", zap.String("pod", id.String()), zap.Error(err))
		return
	}

	sw.patchAnnotation(ctx, pod, constants.AnnotEndpoints, string(payload))
}

func (sw *ServiceWatcher) patchAnnotation(ctx context.Context, pod *corev1.Pod, key, value string) {
	merged := make(map[string]string, len(pod.Annotations)+1)
	for k, v := range pod.Annotations {
		merged[k] = v
	}
	merged[key] = value

	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": merged,
		},
	}
	patchBytes, err := json.Marshal(patch)
	if err != nil {
		sw.logger.Error("marshaling annotation patch failed", zap.Error(err))
		return
	}

	_, err = sw.clientset.CoreV1().Pods(sw.namespace).Patch(
		ctx, pod.Name, types.StrategicMergePatchType, patchBytes, metav1.PatchOptions{})
	if err != nil {
		sw.logger.Error("patching pod annotations failed", zap.String("pod", pod.Name), zap.Error(err))
		return
	}
	pod.Annotations = merged
}

func podUUID(pod *corev1.Pod) (uuid.UUID, error) {
	if pod.UID == "" {
		return uuid.Nil, fmt.Errorf("pod %s missing UID", pod.Name)
	}
	id, err := uuid.Parse(string(pod.UID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing pod UID %q: %w", pod.UID, err)
	}
	return id, nil
}
