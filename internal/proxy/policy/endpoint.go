// Package policy defines the proxy's pluggable target/model-selection
// contract and the shared Endpoint/PreviousResult state the policies
// score against. Policies are selected at startup and dispatched through
// the Policy interface — dynamic dispatch via interface satisfaction,
// no reflection, the same idiom the teacher uses for its probe.Module
// registry.
package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/ring"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// PreviousResult is one completed request attempt against an endpoint.
// Duration is present on success, absent (nil) on timeout/failure — a
// tagged sum type rather than a sentinel value, per the Design Notes.
type PreviousResult struct {
	Duration *time.Duration
	Instant  time.Time
	Context  wire.SimpleContext
}

// GPUInfo is one GPU entry of an endpoint's hardware info annotation.
type GPUInfo struct {
	Name      string `json:"name"`
	CoreCount int    `json:"core_count"`
}

// HWInfo is the decoded hw_info annotation payload.
type HWInfo struct {
	PhysicalCores int       `json:"physical_cores"`
	GPUs          []GPUInfo `json:"gpus"`
}

// Metrics is the decoded triton_metrics annotation payload, as published
// by the PrometheusClient's named-query poll.
type Metrics struct {
	QueueAvg5m       *float64 `json:"queue_avg_5m,omitempty"`
	PendingRequests  *float64 `json:"pending_requests,omitempty"`
	TotalInferences  *float64 `json:"total_inferences,omitempty"`
}

// Endpoint is the proxy's per-neighbor record, keyed by pod UUID.
type Endpoint struct {
	ID   uuid.UUID
	Name string
	IP   string

	HWInfo           *HWInfo
	Metrics          *Metrics
	MetricsQueriedAt *time.Time

	LastResults *ring.Buffer[PreviousResult]
}

// NewEndpoint creates an empty Endpoint (new lifetime: no hw_info, no
// metrics, empty ring) for id/name/ip.
func NewEndpoint(id uuid.UUID, name, ip string, capacity int) *Endpoint {
	return &Endpoint{
		ID:          id,
		Name:        name,
		IP:          ip,
		LastResults: ring.New[PreviousResult](capacity),
	}
}
