// Package promclient periodically polls a local Prometheus instance
// (the pod's own Triton/metrics sidecar) for the configured PromQL
// queries and surfaces the aggregated results as a single annotation
// update.
package promclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/config"
	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// Client polls a set of named PromQL queries on an interval and
// reports the aggregated {name: value} results through onUpdate.
type Client struct {
	api      v1.API
	queries  []config.Metric
	interval time.Duration
	logger   *zap.Logger
	onUpdate func(key, value string)
}

// New builds a Client against the given Prometheus address (e.g. the
// pod's local Triton metrics endpoint, already speaking the
// Prometheus HTTP API).
func New(addr string, queries []config.Metric, interval time.Duration, logger *zap.Logger,
	onUpdate func(key, value string)) (*Client, error) {
	c, err := promapi.NewClient(promapi.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("building prometheus api client: %w", err)
	}
	return &Client{
		api:      v1.NewAPI(c),
		queries:  queries,
		interval: interval,
		logger:   logger,
		onUpdate: onUpdate,
	}, nil
}

// Run polls every configured query on Client's interval until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.pollAll(ctx)
		}
	}
}

// pollAll issues every configured query in parallel, collects the
// successful {name: value} pairs into a single JSON object and
// publishes it once under constants.AnnotTritonMetrics. A query that
// fails is logged and simply absent from the object.
func (c *Client) pollAll(ctx context.Context) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]float64, len(c.queries))
	)

	for _, q := range c.queries {
		wg.Add(1)
		go func(q config.Metric) {
			defer wg.Done()
			value, err := c.pollOne(ctx, q.Query)
			if err != nil {
				c.logger.Warn("promql poll failed", zap.String("metric", q.Name), zap.Error(err))
				return
			}
			mu.Lock()
			results[q.Name] = value
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	if len(results) == 0 {
		return
	}

	payload, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("marshaling triton_metrics payload failed", zap.Error(err))
		return
	}
	c.onUpdate(constants.AnnotTritonMetrics, string(payload))
}

func (c *Client) pollOne(ctx context.Context, query string) (float64, error) {
	result, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("querying %q: %w", query, err)
	}
	for _, w := range warnings {
		c.logger.Debug("promql warning", zap.String("query", query), zap.String("warning", w))
	}
	return extractValue(result, query)
}

// extractValue reduces a PromQL result to the single scalar this
// client aggregates into the metrics annotation. Instant queries over
// a single series yield either a one-element vector or a bare scalar;
// anything else (range matrices, multi-series vectors, strings) isn't
// a shape any configured query is expected to produce. NaN samples
// (e.g. avg() over no data points) are treated as 0.0.
func extractValue(result model.Value, query string) (float64, error) {
	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("empty vector result for %q", query)
		}
		return zeroNaN(float64(v[0].Value)), nil
	case *model.Scalar:
		return zeroNaN(float64(v.Value)), nil
	default:
		return 0, fmt.Errorf("unsupported result type %T for %q", result, query)
	}
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
