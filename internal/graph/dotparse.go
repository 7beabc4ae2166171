package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseDOT parses a minimal subset of Graphviz DOT: one node or edge
// statement per line, nodes are bare or quoted UUID literals, edges use
// "->". This is sufficient for the FromFile policy's target-topology
// files, which are generated by the same graph export this package
// produces. No general DOT grammar (subgraphs, attributes, clusters) is
// supported — no DOT-parsing library exists anywhere in the reference
// corpus to delegate that to, and the target-graph format this consumes
// never uses those features.
func ParseDOT(text string) (*DiGraph, error) {
	g := New()

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, ";")
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "digraph") || strings.HasPrefix(line, "graph") || line == "}" {
			continue
		}

		if idx := strings.Index(line, "->"); idx != -1 {
			fromTok := strings.TrimSpace(line[:idx])
			toTok := strings.TrimSpace(line[idx+2:])
			from, err := parseNodeToken(fromTok)
			if err != nil {
				return nil, fmt.Errorf("parsing edge source %q: %w", fromTok, err)
			}
			to, err := parseNodeToken(toTok)
			if err != nil {
				return nil, fmt.Errorf("parsing edge target %q: %w", toTok, err)
			}
			g.AddNode(from)
			g.AddNode(to)
			g.AddEdge(from, to)
			continue
		}

		id, err := parseNodeToken(line)
		if err != nil {
			return nil, fmt.Errorf("parsing node %q: %w", line, err)
		}
		g.AddNode(id)
	}

	return g, nil
}

func parseNodeToken(tok string) (uuid.UUID, error) {
	tok = strings.TrimSpace(tok)
	tok = strings.Trim(tok, `"`)
	return uuid.Parse(tok)
}
