package policy

import (
	"errors"

	"github.com/google/uuid"

	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// ErrNoEligibleEndpoint is the distinguished "Policy" error kind: the
// eligible set (endpoints minus previous_nodes) is empty. Callers must
// not retry automatically.
var ErrNoEligibleEndpoint = errors.New("policy: no eligible endpoint")

// ErrNoCompatibleModel indicates the model catalog has no entry
// satisfying the policy's selection criteria (should not occur once
// startup's empty-catalog check has passed, but policies still surface
// it rather than panicking).
var ErrNoCompatibleModel = errors.New("policy: no compatible model")

// Policy is the proxy's pluggable target/model-selection contract.
// choose_target must never return a UUID present in request.previous_nodes.
type Policy interface {
	// Name identifies the policy for logging and metrics labels.
	Name() string

	// ChooseTarget selects the endpoint that should handle req, given
	// the current endpoints snapshot. Implementations must treat
	// endpoints as read-only.
	ChooseTarget(req *wire.Request, endpoints map[uuid.UUID]*Endpoint) (uuid.UUID, error)

	// ChooseModel selects which catalog model to run for req.
	ChooseModel(models []model.Model, req *wire.Request) (model.Model, error)
}

// eligible returns the subset of endpoints whose UUID does not appear in
// previousNodes, the "eligible set" / "cycle-free candidates" of the
// Glossary.
func eligible(endpoints map[uuid.UUID]*Endpoint, previousNodes []uuid.UUID) []*Endpoint {
	visited := make(map[uuid.UUID]struct{}, len(previousNodes))
	for _, id := range previousNodes {
		visited[id] = struct{}{}
	}
	out := make([]*Endpoint, 0, len(endpoints))
	for id, ep := range endpoints {
		if _, skip := visited[id]; skip {
			continue
		}
		out = append(out, ep)
	}
	return out
}
