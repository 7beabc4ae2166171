package graph

import "strings"

// DOT renders the graph in Graphviz DOT form, edges unlabelled, for the
// controller's graph-export HTTP endpoint.
func (g *DiGraph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, id := range g.Nodes() {
		b.WriteString("\t\"")
		b.WriteString(id.String())
		b.WriteString("\";\n")
	}
	for _, from := range g.Nodes() {
		for _, to := range g.OutNeighbors(from) {
			b.WriteString("\t\"")
			b.WriteString(from.String())
			b.WriteString("\" -> \"")
			b.WriteString(to.String())
			b.WriteString("\";\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}
