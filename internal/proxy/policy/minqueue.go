package policy

import (
	"sort"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// MinQueue implements the priority/accuracy target and model matrices.
type MinQueue struct{}

func (MinQueue) Name() string { return "min_queue" }

func (MinQueue) ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error) {
	cands := eligible(endpoints, req.PreviousNodes)
	if len(cands) == 0 {
		return uuid.UUID{}, ErrNoEligibleEndpoint
	}

	priority := req.Context.Priority
	accuracy := req.Context.Accuracy

	switch {
	case priority >= 1:
		// Pick 2 highest hw_score, tiebreak by lowest avg_latency.
		top := topByHWScore(cands, 2)
		return minByLatency(top).ID, nil

	case priority == 0 && accuracy == 0:
		// Pick endpoint minimizing estimated_queue_ms.
		best := cands[0]
		bestQ := estimatedQueueMS(best)
		for _, ep := range cands[1:] {
			q := estimatedQueueMS(ep)
			if q < bestQ {
				best = ep
				bestQ = q
			}
		}
		return best.ID, nil

	default: // priority == 0, accuracy >= 1
		top := topByHWScore(cands, 3)
		best := top[0]
		bestQ := estimatedQueueMS(best)
		for _, ep := range top[1:] {
			q := estimatedQueueMS(ep)
			if q < bestQ {
				best = ep
				bestQ = q
			}
		}
		return best.ID, nil
	}
}

func (MinQueue) ChooseModel(models []model.Model, req *wire.Request) (model.Model, error) {
	if len(models) == 0 {
		return model.Model{}, ErrNoCompatibleModel
	}

	priority := req.Context.Priority
	accuracy := req.Context.Accuracy

	switch {
	case accuracy == 0:
		return maxByPerf(models), nil

	case priority == 0:
		return maxByAccuracy(models), nil

	default: // priority >= 1, accuracy >= 1
		top := topModelsByAccuracy(models, 3)
		return maxByPerf(top), nil
	}
}

// topByHWScore returns up to n candidates with the highest hw_score,
// highest first.
func topByHWScore(cands []*Endpoint, n int) []*Endpoint {
	sorted := append([]*Endpoint(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool { return hwScore(sorted[i]) > hwScore(sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func minByLatency(cands []*Endpoint) *Endpoint {
	best := cands[0]
	bestLatency := avgLatency(best)
	for _, ep := range cands[1:] {
		l := avgLatency(ep)
		if l < bestLatency {
			best = ep
			bestLatency = l
		}
	}
	return best
}

func maxByPerf(models []model.Model) model.Model {
	best := models[0]
	for _, m := range models[1:] {
		if m.Perf > best.Perf {
			best = m
		}
	}
	return best
}

func maxByAccuracy(models []model.Model) model.Model {
	best := models[0]
	for _, m := range models[1:] {
		if m.Accuracy > best.Accuracy {
			best = m
		}
	}
	return best
}

func topModelsByAccuracy(models []model.Model, n int) []model.Model {
	sorted := append([]model.Model(nil), models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Accuracy > sorted[j].Accuracy })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
