package policy

import (
	"encoding/json"
	"os"

	corev1 "k8s.io/api/core/v1"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/graph"
)

type graphFile struct {
	Graph string `json:"graph"`
}

// FromFile loads a fixed target topology from a DOT-in-JSON file and
// realises edges into the live pod graph incrementally as their
// endpoints become ready. Grounded on the source's FromFile::pod_added:
// for a newly-ready pod, walk both directions of the target graph and
// add any edge whose other endpoint is already live.
type FromFile struct {
	target *graph.DiGraph
	logger *zap.Logger
}

// NewFromFile loads path (a JSON {"graph": "<dot text>"} file) and
// builds the target topology. A missing or unparseable file yields an
// empty target graph (logged, not fatal — matches the source's
// default-to-empty fallback).
func NewFromFile(path string, logger *zap.Logger) *FromFile {
	target := graph.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("graph file not found, FromFile policy will realize no edges", zap.String("path", path), zap.Error(err))
		return &FromFile{target: target, logger: logger}
	}

	var gf graphFile
	if err := json.Unmarshal(raw, &gf); err != nil {
		logger.Error("failed to parse graph file", zap.Error(err))
		return &FromFile{target: target, logger: logger}
	}

	parsed, err := graph.ParseDOT(gf.Graph)
	if err != nil {
		logger.Error("failed to parse DOT content of graph file", zap.Error(err))
		return &FromFile{target: target, logger: logger}
	}

	logger.Info("loaded target graph file", zap.String("path", path), zap.Int("nodes", parsed.NodeCount()))
	return &FromFile{target: parsed, logger: logger}
}

func (p *FromFile) Name() string { return "from_file" }

func (p *FromFile) PodAdded(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	if !p.target.ContainsNode(id) {
		p.logger.Warn("pod not present in target graph", zap.String("pod", id.String()))
		return nil
	}

	var affected []uuid.UUID

	for _, source := range p.target.Predecessors(id) {
		if g.ContainsNode(source) {
			g.AddEdge(source, id)
			affected = append(affected, source)
		}
	}
	for _, target := range p.target.OutNeighbors(id) {
		if g.ContainsNode(target) {
			g.AddEdge(id, target)
			affected = append(affected, target)
		}
	}

	return affected
}

func (p *FromFile) PodUpdated(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID) []uuid.UUID {
	return nil
}

func (p *FromFile) PodRemoved(g *graph.DiGraph, pods map[uuid.UUID]*corev1.Pod, id uuid.UUID, incoming []uuid.UUID) []uuid.UUID {
	return nil
}
