// Package model loads the proxy's model catalog from CSV and filters it
// to models compatible with the local hardware. No CSV library appears
// anywhere in the reference corpus, so this uses the standard library's
// encoding/csv directly — see DESIGN.md.
package model

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Model describes one entry of the proxy's model catalog.
type Model struct {
	Name           string
	Format         string
	BatchSize      int
	Channels       int
	Width          int
	Height         int
	InputType      string
	InputName      string
	OutputName     string
	CompatibleGPUs map[string]struct{}
	Perf           float64
	Accuracy       float64
}

// CompatibleWithGPUs reports whether m can run on any of the given local
// GPU names, or is CPU-only (empty CompatibleGPUs, universally
// compatible).
func (m Model) CompatibleWithGPUs(localGPUs []string) bool {
	if len(m.CompatibleGPUs) == 0 {
		return true
	}
	for _, gpu := range localGPUs {
		if _, ok := m.CompatibleGPUs[gpu]; ok {
			return true
		}
	}
	return false
}

var csvHeader = []string{
	"name", "format", "batch_size", "channels", "width", "height",
	"input_type", "input_name", "output_name", "compatible_gpus", "perf", "accuracy",
}

// LoadCatalog reads the model catalog CSV at path and filters it to
// models compatible with localGPUs. An empty filtered result is a fatal
// startup error per spec — the caller is expected to treat it as such.
func LoadCatalog(path string, localGPUs []string) ([]Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model catalog %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading model catalog header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	var all []Model
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading model catalog row: %w", err)
		}
		m, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("parsing model catalog row: %w", err)
		}
		all = append(all, m)
	}

	var compatible []Model
	for _, m := range all {
		if m.CompatibleWithGPUs(localGPUs) {
			compatible = append(compatible, m)
		}
	}

	if len(compatible) == 0 {
		return nil, fmt.Errorf("no compatible models found in catalog %s for GPUs %v", path, localGPUs)
	}

	return compatible, nil
}

func validateHeader(got []string) error {
	if len(got) != len(csvHeader) {
		return fmt.Errorf("model catalog header has %d columns, want %d", len(got), len(csvHeader))
	}
	for i, col := range csvHeader {
		if got[i] != col {
			return fmt.Errorf("model catalog header column %d = %q, want %q", i, got[i], col)
		}
	}
	return nil
}

func parseRow(record []string) (Model, error) {
	batchSize, err := strconv.Atoi(record[2])
	if err != nil {
		return Model{}, fmt.Errorf("batch_size: %w", err)
	}
	channels, err := strconv.Atoi(record[3])
	if err != nil {
		return Model{}, fmt.Errorf("channels: %w", err)
	}
	width, err := strconv.Atoi(record[4])
	if err != nil {
		return Model{}, fmt.Errorf("width: %w", err)
	}
	height, err := strconv.Atoi(record[5])
	if err != nil {
		return Model{}, fmt.Errorf("height: %w", err)
	}
	perf, err := strconv.ParseFloat(record[10], 64)
	if err != nil {
		return Model{}, fmt.Errorf("perf: %w", err)
	}
	accuracy, err := strconv.ParseFloat(record[11], 64)
	if err != nil {
		return Model{}, fmt.Errorf("accuracy: %w", err)
	}

	gpus := make(map[string]struct{})
	if raw := strings.TrimSpace(record[9]); raw != "" {
		for _, gpu := range strings.Split(raw, ";") {
			gpu = strings.TrimSpace(gpu)
			if gpu != "" {
				gpus[gpu] = struct{}{}
			}
		}
	}

	return Model{
		Name:           record[0],
		Format:         record[1],
		BatchSize:      batchSize,
		Channels:       channels,
		Width:          width,
		Height:         height,
		InputType:      record[6],
		InputName:      record[7],
		OutputName:     record[8],
		CompatibleGPUs: gpus,
		Perf:           perf,
		Accuracy:       accuracy,
	}, nil
}
