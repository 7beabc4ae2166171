package policy

import (
	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// Requisitos ("requirements-based") is the multi-tier policy: canonical
// per spec.md's Open Question note, since the source's Requisitos
// variants disagree across copies and one is missing its own function
// body.
type Requisitos struct{}

func (Requisitos) Name() string { return "requisitos" }

func (Requisitos) ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error) {
	cands := eligible(endpoints, req.PreviousNodes)
	if len(cands) == 0 {
		return uuid.UUID{}, ErrNoEligibleEndpoint
	}

	// Tier (a): endpoints that previously served comparable-accuracy
	// requests within `priority` ms — of those, the least loaded.
	var tierA []*Endpoint
	for _, ep := range cands {
		t, ok := estTimeForAcc(ep, req.Context.Accuracy)
		if ok && t <= float64(req.Context.Priority) {
			tierA = append(tierA, ep)
		}
	}
	if len(tierA) > 0 {
		return leastLoaded(tierA).ID, nil
	}

	// Tier (b): untried endpoints (empty ring), highest hw-score.
	var untried []*Endpoint
	for _, ep := range cands {
		if ep.LastResults.Len() == 0 {
			untried = append(untried, ep)
		}
	}
	if len(untried) > 0 {
		return highestHWScore(untried).ID, nil
	}

	// Tier (c): endpoints with < 3 prior results, max hw-score.
	var sparse []*Endpoint
	for _, ep := range cands {
		if ep.LastResults.Len() < 3 {
			sparse = append(sparse, ep)
		}
	}
	if len(sparse) > 0 {
		return highestHWScore(sparse).ID, nil
	}

	// Tier (d): lowest avg_latency.
	return minByLatency(cands).ID, nil
}

func (Requisitos) ChooseModel(models []model.Model, req *wire.Request) (model.Model, error) {
	if len(models) == 0 {
		return model.Model{}, ErrNoCompatibleModel
	}

	var candidates []model.Model
	for _, m := range models {
		if uint32(m.Accuracy) >= req.Context.Accuracy {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) > 0 {
		return maxByPerf(candidates), nil
	}

	// Fallback: highest-accuracy model.
	return maxByAccuracy(models), nil
}

func leastLoaded(cands []*Endpoint) *Endpoint {
	best := cands[0]
	bestQ := estimatedQueueMS(best)
	for _, ep := range cands[1:] {
		q := estimatedQueueMS(ep)
		if q < bestQ {
			best = ep
			bestQ = q
		}
	}
	return best
}

func highestHWScore(cands []*Endpoint) *Endpoint {
	best := cands[0]
	bestScore := hwScore(best)
	for _, ep := range cands[1:] {
		s := hwScore(ep)
		if s > bestScore {
			best = ep
			bestScore = s
		}
	}
	return best
}
