package watch

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"
)

// Message is carried over the WatcherManager's bounded channel
// (capacity constants.ControllerManagerBuffer). The manager owns
// every ServiceWatcher and is the sole goroutine that mutates them;
// all other goroutines (the reconciler, each ServiceWatcher's own
// pod-watch task, the graph-export HTTP handler) talk to it only
// through these messages.
type Message interface {
	isManagerMessage()
}

// NewService asks the manager to start (idempotently) a ServiceWatcher
// for the given service.
type NewService struct {
	UID       uuid.UUID
	Namespace string
	Selector  string
}

func (NewService) isManagerMessage() {}

// DeleteService asks the manager to stop and drop a ServiceWatcher.
type DeleteService struct {
	UID uuid.UUID
}

func (DeleteService) isManagerMessage() {}

// PodReady reports a pod of service UID transitioning to, or already
// being, ready.
type PodReady struct {
	ServiceUID uuid.UUID
	Pod        *corev1.Pod
}

func (PodReady) isManagerMessage() {}

// PodUnready reports a pod of service UID transitioning to not-ready
// or being deleted.
type PodUnready struct {
	ServiceUID uuid.UUID
	Pod        *corev1.Pod
}

func (PodUnready) isManagerMessage() {}

// ExportGraph asks the manager for the DOT serialization of a
// service's pod graph. RespondTo is a capacity-1 channel the manager
// writes exactly once before returning (Go's stand-in for a one-shot
// channel): ("", false) if the service is unknown.
type ExportGraph struct {
	ServiceUID uuid.UUID
	RespondTo  chan<- exportResult
}

func (ExportGraph) isManagerMessage() {}

type exportResult struct {
	dot string
	ok  bool
}
