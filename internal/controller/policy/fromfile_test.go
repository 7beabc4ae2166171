package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

func writeGraphFile(t *testing.T, dot string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	raw, err := json.Marshal(graphFile{Graph: dot})
	if err != nil {
		t.Fatalf("marshal graph file: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write graph file: %v", err)
	}
	return path
}

func TestFromFileMissingFileFallsBackToEmptyTarget(t *testing.T) {
	p := NewFromFile("/nonexistent/path/graph.json", zap.NewNop())
	if p.target.NodeCount() != 0 {
		t.Fatalf("expected empty target graph, got %d nodes", p.target.NodeCount())
	}
}

func TestFromFilePodAddedRealizesBothDirections(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	dot := "digraph {\n\"" + a.String() + "\" -> \"" + b.String() + "\"\n\"" + b.String() + "\" -> \"" + c.String() + "\"\n}"
	path := writeGraphFile(t, dot)

	p := NewFromFile(path, zap.NewNop())
	if p.target.NodeCount() != 3 {
		t.Fatalf("expected 3 target nodes, got %d", p.target.NodeCount())
	}

	g := graph.New()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	pods := map[uuid.UUID]*corev1.Pod{}

	// b's predecessor (a) and successor (c) are both already live: both
	// edges should be realized and both reported as affected.
	affected := p.PodAdded(g, pods, b)

	if !g.ContainsEdge(a, b) {
		t.Errorf("expected edge %s -> %s to be realized", a, b)
	}
	if !g.ContainsEdge(b, c) {
		t.Errorf("expected edge %s -> %s to be realized", b, c)
	}
	if len(affected) != 2 {
		t.Errorf("expected 2 affected pods, got %d: %v", len(affected), affected)
	}
}

func TestFromFilePodAddedSkipsEdgesToAbsentPeers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	dot := "digraph {\n\"" + a.String() + "\" -> \"" + b.String() + "\"\n}"
	path := writeGraphFile(t, dot)

	p := NewFromFile(path, zap.NewNop())

	g := graph.New()
	g.AddNode(b) // a is not live yet
	pods := map[uuid.UUID]*corev1.Pod{}

	affected := p.PodAdded(g, pods, b)
	if g.EdgeCount() != 0 {
		t.Fatalf("expected no edges realized while peer is absent, got %d", g.EdgeCount())
	}
	if len(affected) != 0 {
		t.Fatalf("expected no affected pods, got %v", affected)
	}
}

func TestFromFilePodAddedUnknownPodIsNoOp(t *testing.T) {
	path := writeGraphFile(t, "digraph{}")
	p := NewFromFile(path, zap.NewNop())

	g := graph.New()
	id := uuid.New()
	g.AddNode(id)

	affected := p.PodAdded(g, map[uuid.UUID]*corev1.Pod{}, id)
	if affected != nil {
		t.Fatalf("expected nil affected for pod absent from target graph, got %v", affected)
	}
}
