package promclient

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/config"
	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

var errUnknownQuery = errors.New("unknown query")

func TestExtractValueVectorTakesFirstSample(t *testing.T) {
	v := model.Vector{
		{Value: 42},
		{Value: 7},
	}
	got, err := extractValue(v, "some_query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("extractValue(vector) = %v, want 42", got)
	}
}

func TestExtractValueEmptyVectorErrors(t *testing.T) {
	if _, err := extractValue(model.Vector{}, "some_query"); err == nil {
		t.Fatalf("expected an error for an empty vector result")
	}
}

func TestExtractValueScalar(t *testing.T) {
	got, err := extractValue(&model.Scalar{Value: 3.5}, "some_query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3.5 {
		t.Errorf("extractValue(scalar) = %v, want 3.5", got)
	}
}

func TestExtractValueUnsupportedTypeErrors(t *testing.T) {
	if _, err := extractValue(model.Matrix{}, "some_query"); err == nil {
		t.Fatalf("expected an error for an unsupported result type")
	}
}

func TestExtractValueVectorNaNIsZeroed(t *testing.T) {
	v := model.Vector{{Value: model.SampleValue(math.NaN())}}
	got, err := extractValue(v, "some_query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("extractValue(NaN vector) = %v, want 0", got)
	}
}

func TestExtractValueScalarNaNIsZeroed(t *testing.T) {
	got, err := extractValue(&model.Scalar{Value: model.SampleValue(math.NaN())}, "some_query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("extractValue(NaN scalar) = %v, want 0", got)
	}
}

// fakeAPI implements just enough of v1.API to drive pollAll in tests;
// embedding the real interface with a nil value means any method this
// test doesn't override panics on use, rather than compiling wrong.
type fakeAPI struct {
	v1.API
	mu      sync.Mutex
	calls   int
	results map[string]model.Value
}

func (f *fakeAPI) Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if v, ok := f.results[query]; ok {
		return v, nil, nil
	}
	return nil, nil, errUnknownQuery
}

func TestPollAllAggregatesSuccessfulQueriesIntoOneAnnotation(t *testing.T) {
	queries := []config.Metric{
		{Name: "queue_avg_5m", Query: "q1"},
		{Name: "pending_requests", Query: "q2"},
		{Name: "total_inferences", Query: "q3"}, // fails, absent from fakeAPI results
	}
	fake := &fakeAPI{results: map[string]model.Value{
		"q1": &model.Scalar{Value: 1.5},
		"q2": model.Vector{{Value: 4}},
	}}

	var gotKey, gotValue string
	var calls int
	c := &Client{
		api:      fake,
		queries:  queries,
		interval: time.Second,
		logger:   zap.NewNop(),
		onUpdate: func(key, value string) {
			calls++
			gotKey = key
			gotValue = value
		},
	}

	c.pollAll(context.Background())

	if calls != 1 {
		t.Fatalf("expected exactly one onUpdate call aggregating all results, got %d", calls)
	}
	if gotKey != constants.AnnotTritonMetrics {
		t.Fatalf("onUpdate key = %q, want %q", gotKey, constants.AnnotTritonMetrics)
	}

	var decoded map[string]float64
	if err := json.Unmarshal([]byte(gotValue), &decoded); err != nil {
		t.Fatalf("onUpdate value is not valid JSON: %v", err)
	}
	if decoded["queue_avg_5m"] != 1.5 || decoded["pending_requests"] != 4 {
		t.Fatalf("unexpected aggregated payload: %v", decoded)
	}
	if _, ok := decoded["total_inferences"]; ok {
		t.Fatalf("expected the failed query to be absent from the payload, got %v", decoded)
	}
}

func TestPollAllNoSuccessfulQueriesSkipsUpdate(t *testing.T) {
	queries := []config.Metric{{Name: "queue_avg_5m", Query: "q1"}}
	fake := &fakeAPI{results: map[string]model.Value{}}

	calls := 0
	c := &Client{
		api:      fake,
		queries:  queries,
		interval: time.Second,
		logger:   zap.NewNop(),
		onUpdate: func(key, value string) { calls++ },
	}

	c.pollAll(context.Background())

	if calls != 0 {
		t.Fatalf("expected no onUpdate call when every query fails, got %d", calls)
	}
}
