package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/gulis1/edge-inference-fabric/internal/controller/watch"
)

func newTestServer() *Server {
	mgr := watch.New(fake.NewSimpleClientset(), "noop", "", zap.NewNop(), nil)
	go mgr.Run(context.Background())
	return New(mgr, zap.NewNop())
}

func TestHandleHealthzAlwaysOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleReadyzReflectsSetReady(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("GET", "/readyz", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("readyz before SetReady = %d, want 503", resp.StatusCode)
	}

	s.SetReady(true)
	resp, err = s.app.Test(httptest.NewRequest("GET", "/readyz", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("readyz after SetReady = %d, want 200", resp.StatusCode)
	}
}

func TestHandleExportGraphUnknownServiceIs404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/"+uuid.New().String(), nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("export of unknown service = %d, want 404", resp.StatusCode)
	}
}

func TestHandleExportGraphInvalidUUIDIs400(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/not-a-uuid", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("export with invalid uuid = %d, want 400", resp.StatusCode)
	}
}

func TestNotifyGraphChangedFansOutNonBlocking(t *testing.T) {
	s := newTestServer()
	serviceUID := uuid.New()

	ch := make(chan string, 1)
	s.subscribe(serviceUID, ch)
	defer s.unsubscribe(serviceUID, ch)

	s.NotifyGraphChanged(serviceUID)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected a notification on the subscribed channel")
	}

	// A full buffer must not block the notifier.
	s.NotifyGraphChanged(serviceUID)
	s.NotifyGraphChanged(serviceUID)
}
