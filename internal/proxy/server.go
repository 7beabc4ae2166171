// Package proxy implements the per-pod ProxyServer state machine: the
// TCP accept loop, target/model selection via a pluggable Policy, the
// local-execution bridge, and the shared reader-writer-locked endpoint
// table.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/localexec"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/proxy/policy"
	"github.com/gulis1/edge-inference-fabric/internal/wire"
)

// NeighborFetcher fetches a named annotation from another pod. Satisfied
// by internal/proxy/watch.AnnotationsWatcher; kept as an interface here
// so this package never imports the k8s-facing watch package.
type NeighborFetcher interface {
	FetchAnnotation(ctx context.Context, podName, annotation string) (json.RawMessage, bool)
}

// endpointRef is the JSON shape the controller publishes in the
// endpoints annotation.
type endpointRef struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// Server is the ProxyServer state machine.
type Server struct {
	SelfUUID       uuid.UUID
	requestTimeout time.Duration

	mu        sync.RWMutex
	endpoints map[uuid.UUID]*policy.Endpoint

	pol     policy.Policy
	models  []model.Model
	bridge  *localexec.Bridge
	logger  *zap.Logger
	metr    *metrics.Proxy
	sem     *semaphore.Weighted
	fetcher NeighborFetcher
}

// New creates a Server with an empty endpoint table.
func New(self uuid.UUID, requestTimeout time.Duration, pol policy.Policy, models []model.Model,
	bridge *localexec.Bridge, logger *zap.Logger, metr *metrics.Proxy, fetcher NeighborFetcher) *Server {
	return &Server{
		SelfUUID:       self,
		requestTimeout: requestTimeout,
		endpoints:      make(map[uuid.UUID]*policy.Endpoint),
		pol:            pol,
		models:         models,
		bridge:         bridge,
		logger:         logger,
		metr:           metr,
		sem:            semaphore.NewWeighted(int64(constants.NeighborFetchPermits)),
		fetcher:        fetcher,
	}
}

// Run starts the accept loop and the metrics-refresh loop, and blocks
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listenAddr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	s.logger.Info("proxy server listening", zap.String("addr", listenAddr))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop(ctx, ln)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.metricsRefreshLoop(ctx)
	}()

	<-ctx.Done()
	ln.Close()
	wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}
		go func() {
			defer conn.Close()
			if err := s.handleRequest(ctx, conn); err != nil {
				s.logger.Warn("request handling failed", zap.Error(err))
			}
		}()
	}
}

// handleRequest implements §4.3's handle_request: decode, select target
// under a read lock (released before any I/O), dispatch locally or
// forward, then record the outcome under a write lock.
func (s *Server) handleRequest(ctx context.Context, conn net.Conn) error {
	req, err := wire.Decode(conn)
	if err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	if req.Jumps != uint32(len(req.PreviousNodes)) {
		return fmt.Errorf("protocol error: jumps %d != len(previous_nodes) %d", req.Jumps, len(req.PreviousNodes))
	}

	s.mu.RLock()
	target, chooseErr := s.pol.ChooseTarget(req, s.endpoints)
	var targetEP *policy.Endpoint
	if chooseErr == nil {
		targetEP = s.endpoints[target]
	}
	s.mu.RUnlock()

	if chooseErr != nil {
		s.metr.ObserveRequest(s.pol.Name(), "policy_error", 0, int(req.Jumps))
		return fmt.Errorf("choosing target: %w", chooseErr)
	}

	start := time.Now()
	var ioErr error

	if target == s.SelfUUID {
		output, err := s.processLocally(ctx, req)
		if err != nil {
			ioErr = err
		} else {
			output = append(output, []byte(wire.RouteTrailer(req.PreviousNodes, s.SelfUUID))...)
			_, ioErr = conn.Write(output)
		}
	} else {
		ioErr = s.forward(ctx, req, targetEP, conn)
	}

	elapsed := time.Since(start)
	s.recordOutcome(target, req, ioErr, elapsed)

	outcome := "success"
	if ioErr != nil {
		outcome = "failure"
	}
	s.metr.ObserveRequest(s.pol.Name(), outcome, elapsed.Seconds(), int(req.Jumps))

	return ioErr
}

func (s *Server) processLocally(ctx context.Context, req *wire.Request) ([]byte, error) {
	m, err := s.pol.ChooseModel(s.models, req)
	if err != nil {
		return nil, fmt.Errorf("choosing model: %w", err)
	}
	return s.bridge.Run(ctx, m.Name, req.Content)
}

func (s *Server) forward(ctx context.Context, req *wire.Request, target *policy.Endpoint, client io.Writer) error {
	if target == nil {
		return errors.New("forward: target endpoint vanished before dispatch")
	}

	fctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	forwarded := &wire.Request{
		ID:            req.ID,
		Jumps:         req.Jumps + 1,
		Context:       req.Context,
		Content:       req.Content,
		PreviousNodes: append(append([]uuid.UUID(nil), req.PreviousNodes...), s.SelfUUID),
	}

	var d net.Dialer
	conn, err := d.DialContext(fctx, "tcp", target.IP)
	if err != nil {
		return fmt.Errorf("dialing target %s: %w", target.IP, err)
	}
	defer conn.Close()
	if dl, ok := fctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := forwarded.Encode(conn); err != nil {
		return fmt.Errorf("encoding forwarded request: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	if _, err := io.Copy(client, conn); err != nil {
		return fmt.Errorf("streaming upstream response: %w", err)
	}
	return nil
}

// recordOutcome appends a PreviousResult to target's ring buffer. If the
// endpoint was removed mid-request, the outcome is dropped silently.
func (s *Server) recordOutcome(target uuid.UUID, req *wire.Request, ioErr error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[target]
	if !ok {
		return
	}

	result := policy.PreviousResult{
		Instant: time.Now(),
		Context: req.Context,
	}
	if ioErr == nil {
		d := elapsed
		result.Duration = &d
	}
	ep.LastResults.Push(result)
}

// UpdateEndpoints implements update_endpoints: parse the JSON array of
// {uuid,name,ip}, diff against the current table, retain prior state for
// surviving UUIDs, and schedule an hw_info fetch for newly-appearing ones.
func (s *Server) UpdateEndpoints(ctx context.Context, raw []byte) error {
	var refs []endpointRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return fmt.Errorf("parsing endpoints payload: %w", err)
	}

	next := make(map[uuid.UUID]*policy.Endpoint, len(refs))
	var newlyAdded []*policy.Endpoint

	s.mu.Lock()
	for _, ref := range refs {
		id, err := uuid.Parse(ref.UUID)
		if err != nil {
			s.logger.Warn("dropping malformed endpoint uuid", zap.String("uuid", ref.UUID), zap.Error(err))
			continue
		}
		ip := ref.IP + ":9999"

		if existing, ok := s.endpoints[id]; ok {
			// Identity-preserving refresh: explicit field copy, never
			// carry the whole prior object (name/ip may be stale).
			ep := &policy.Endpoint{
				ID:               id,
				Name:             ref.Name,
				IP:               ip,
				HWInfo:           existing.HWInfo,
				Metrics:          existing.Metrics,
				MetricsQueriedAt: existing.MetricsQueriedAt,
				LastResults:      existing.LastResults,
			}
			next[id] = ep
		} else {
			ep := policy.NewEndpoint(id, ref.Name, ip, constants.RingBufferCapacity)
			next[id] = ep
			newlyAdded = append(newlyAdded, ep)
		}
	}
	s.endpoints = next
	s.metr.EndpointCount.Set(float64(len(next)))
	s.mu.Unlock()

	for _, ep := range newlyAdded {
		go s.queryAnnot(ctx, ep, constants.AnnotHWInfo, true)
	}

	return nil
}

// metricsRefreshLoop periodically re-fetches metrics for endpoints whose
// MetricsQueriedAt is absent or older than QueryMaxElapsed.
func (s *Server) metricsRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.QueryMaxElapsed)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			var stale []*policy.Endpoint
			now := time.Now()
			for _, ep := range s.endpoints {
				if ep.MetricsQueriedAt == nil || now.Sub(*ep.MetricsQueriedAt) >= constants.QueryMaxElapsed {
					stale = append(stale, ep)
				}
			}
			s.mu.RUnlock()

			for _, ep := range stale {
				go s.queryAnnot(ctx, ep, constants.AnnotTritonMetrics, false)
			}
		}
	}
}

// queryAnnot fetches the named annotation from ep's pod, bounded by the
// 2-permit semaphore, and applies it to the endpoint's hw_info or
// metrics field depending on which annotation was requested.
func (s *Server) queryAnnot(ctx context.Context, ep *policy.Endpoint, annotation string, isHWInfo bool) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	raw, ok := s.fetcher.FetchAnnotation(ctx, ep.Name, annotation)
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	s.metr.NeighborFetches.WithLabelValues(annotation, outcome).Inc()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, stillPresent := s.endpoints[ep.ID]
	if !stillPresent || current != ep {
		// Endpoint was evicted or replaced by a concurrent refresh
		// since this fetch started; drop silently.
		return
	}

	if isHWInfo {
		var hw policy.HWInfo
		if err := json.Unmarshal(raw, &hw); err != nil {
			s.logger.Warn("malformed hw_info annotation", zap.String("endpoint", ep.Name), zap.Error(err))
			return
		}
		current.HWInfo = &hw
	} else {
		var m policy.Metrics
		if err := json.Unmarshal(raw, &m); err != nil {
			s.logger.Warn("malformed metrics annotation", zap.String("endpoint", ep.Name), zap.Error(err))
			return
		}
		current.Metrics = &m
		now := time.Now()
		current.MetricsQueriedAt = &now
	}
}

// Endpoints returns a snapshot of the current endpoint table for
// read-only inspection (tests, debugging).
func (s *Server) Endpoints() map[uuid.UUID]*policy.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*policy.Endpoint, len(s.endpoints))
	for id, ep := range s.endpoints {
		out[id] = ep
	}
	return out
}
