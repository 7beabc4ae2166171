package policy

import (
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// RoundRobin cycles through eligible endpoints via an atomic counter
// modulo the eligible-set size, and always picks the slowest model —
// the canonical variant per spec.md's Open Question note (the source's
// "Rrobin" copies diverge; this one is treated as authoritative).
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (*RoundRobin) Name() string { return "round_robin" }

func (r *RoundRobin) ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error) {
	cands := eligible(endpoints, req.PreviousNodes)
	if len(cands) == 0 {
		return uuid.UUID{}, ErrNoEligibleEndpoint
	}
	// Sort for a deterministic cycling order; map iteration order is
	// randomized in Go and would make the counter meaningless otherwise.
	sort.Slice(cands, func(i, j int) bool { return cands[i].ID.String() < cands[j].ID.String() })

	idx := r.counter.Add(1) - 1
	return cands[idx%uint64(len(cands))].ID, nil
}

func (*RoundRobin) ChooseModel(models []model.Model, req *wire.Request) (model.Model, error) {
	return slowestModel(models)
}
