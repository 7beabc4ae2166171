package policy

import (
	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// MinLatency picks the eligible endpoint with the lowest avg_latency
// (never-used endpoints score 0 and are preferred) and the fastest
// (max perf) model.
type MinLatency struct{}

func (MinLatency) Name() string { return "min_latency" }

func (MinLatency) ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error) {
	cands := eligible(endpoints, req.PreviousNodes)
	if len(cands) == 0 {
		return uuid.UUID{}, ErrNoEligibleEndpoint
	}

	best := cands[0]
	bestLatency := avgLatency(best)
	for _, ep := range cands[1:] {
		l := avgLatency(ep)
		if l < bestLatency {
			best = ep
			bestLatency = l
		}
	}
	return best.ID, nil
}

func (MinLatency) ChooseModel(models []model.Model, req *wire.Request) (model.Model, error) {
	if len(models) == 0 {
		return model.Model{}, ErrNoCompatibleModel
	}
	fastest := models[0]
	for _, m := range models[1:] {
		if m.Perf > fastest.Perf {
			fastest = m
		}
	}
	return fastest, nil
}
