package proxy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/localexec"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
	"github.com/gulis1/edge-inference-fabric/internal/proxy/policy"
)

type stubFetcher struct{}

func (stubFetcher) FetchAnnotation(ctx context.Context, podName, annotation string) (json.RawMessage, bool) {
	return json.RawMessage(`{}`), true
}

func newTestServer() *Server {
	return New(
		uuid.New(),
		5*time.Second,
		policy.MinLatency{},
		nil,
		localexec.New("127.0.0.1:1"),
		zap.NewNop(),
		metrics.NewProxy(),
		stubFetcher{},
	)
}

func endpointsPayload(t *testing.T, ids ...uuid.UUID) []byte {
	t.Helper()
	type ref struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
		IP   string `json:"ip"`
	}
	refs := make([]ref, len(ids))
	for i, id := range ids {
		refs[i] = ref{UUID: id.String(), Name: "pod-" + id.String(), IP: "10.0.0." + string(rune('1'+i))}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestUpdateEndpointsIsIdempotent(t *testing.T) {
	s := newTestServer()
	a, b := uuid.New(), uuid.New()
	payload := endpointsPayload(t, a, b)

	if err := s.UpdateEndpoints(context.Background(), payload); err != nil {
		t.Fatalf("first UpdateEndpoints: %v", err)
	}
	first := s.Endpoints()

	if err := s.UpdateEndpoints(context.Background(), payload); err != nil {
		t.Fatalf("second UpdateEndpoints: %v", err)
	}
	second := s.Endpoints()

	if len(first) != len(second) {
		t.Fatalf("endpoint count changed across idempotent calls: %d vs %d", len(first), len(second))
	}
	for id := range first {
		if _, ok := second[id]; !ok {
			t.Errorf("endpoint %s missing after idempotent re-apply", id)
		}
	}
}

func TestUpdateEndpointsPreservesRetainedState(t *testing.T) {
	s := newTestServer()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	if err := s.UpdateEndpoints(context.Background(), endpointsPayload(t, a, b)); err != nil {
		t.Fatalf("initial UpdateEndpoints: %v", err)
	}

	// Simulate a recorded outcome against b before refresh.
	eps := s.Endpoints()
	bEP := eps[b]
	d := 7 * time.Millisecond
	bEP.LastResults.Push(policy.PreviousResult{Duration: &d, Instant: time.Now()})

	if err := s.UpdateEndpoints(context.Background(), endpointsPayload(t, b, c)); err != nil {
		t.Fatalf("refresh UpdateEndpoints: %v", err)
	}

	after := s.Endpoints()
	if _, ok := after[a]; ok {
		t.Error("a should have been evicted from the endpoint table")
	}
	newB, ok := after[b]
	if !ok {
		t.Fatal("b should still be present after refresh")
	}
	if newB.LastResults.Len() != 1 {
		t.Errorf("b's ring should retain its 1 prior result, got %d", newB.LastResults.Len())
	}
	newC, ok := after[c]
	if !ok {
		t.Fatal("c should be present as a new endpoint")
	}
	if newC.LastResults.Len() != 0 {
		t.Error("newly appeared endpoint c should start with an empty ring")
	}
}
