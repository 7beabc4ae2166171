package policy

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// Random picks uniformly over eligible endpoints and the slowest
// (min perf) model — useful as a load-distribution baseline and for
// exercising the rest of the stack without a scoring strategy.
type Random struct{}

func (Random) Name() string { return "random" }

func (Random) ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error) {
	cands := eligible(endpoints, req.PreviousNodes)
	if len(cands) == 0 {
		return uuid.UUID{}, ErrNoEligibleEndpoint
	}
	return cands[rand.Intn(len(cands))].ID, nil
}

func (Random) ChooseModel(models []model.Model, req *wire.Request) (model.Model, error) {
	return slowestModel(models)
}

func slowestModel(models []model.Model) (model.Model, error) {
	if len(models) == 0 {
		return model.Model{}, ErrNoCompatibleModel
	}
	slowest := models[0]
	for _, m := range models[1:] {
		if m.Perf < slowest.Perf {
			slowest = m
		}
	}
	return slowest, nil
}
