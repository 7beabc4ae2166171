package policy

import "fmt"

// New constructs the named policy. Selected at startup from config/env —
// dynamic dispatch through the Policy interface from then on, never by
// name again.
func New(name string) (Policy, error) {
	switch name {
	case "random":
		return Random{}, nil
	case "round_robin":
		return NewRoundRobin(), nil
	case "min_latency":
		return MinLatency{}, nil
	case "min_queue":
		return MinQueue{}, nil
	case "requisitos":
		return Requisitos{}, nil
	default:
		return nil, fmt.Errorf("unknown proxy policy %q", name)
	}
}
