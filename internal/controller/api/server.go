// Package api implements the controller's graph-export HTTP server:
// GET /{service_uuid} returns the DOT text of that service's pod
// graph, plus a websocket debug stream and the standard healthz/readyz
// pair. Grounded on the teacher's fiber-based internal/api.Server.
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/watch"
)

// Server is the controller's graph-export + liveness HTTP server.
type Server struct {
	app     *fiber.App
	manager *watch.Manager
	logger  *zap.Logger

	mu        sync.Mutex
	ready     bool
	streamers map[uuid.UUID][]chan string
}

// New builds the server, wiring recover/logger/cors middleware the
// way the teacher's internal/api.Server does.
func New(manager *watch.Manager, logger *zap.Logger) *Server {
	s := &Server{
		manager:   manager,
		logger:    logger,
		streamers: make(map[uuid.UUID][]chan string),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	app.Get(constants.PathHealthz, s.handleHealthz)
	app.Get(constants.PathReadyz, s.handleReadyz)
	app.Get("/:service_uuid", s.handleExportGraph)

	app.Use("/:service_uuid/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("service_uuid", c.Params("service_uuid"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/:service_uuid/stream", websocket.New(s.handleStream))

	s.app = app
	return s
}

// SetReady toggles readiness, mirroring internal/exporter.Server.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.HTTPShutdownTimeout)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleReadyz(c *fiber.Ctx) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleExportGraph(c *fiber.Ctx) error {
	serviceUID, err := uuid.Parse(c.Params("service_uuid"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid service_uuid")
	}

	ctx, cancel := context.WithTimeout(c.Context(), constants.HTTPReadTimeout)
	defer cancel()

	dot, ok, err := s.manager.ExportGraph(ctx, serviceUID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown service")
	}

	c.Set(fiber.HeaderContentType, "text/vnd.graphviz")
	return c.SendString(dot)
}

// handleStream pushes a one-line message whenever the named service's
// graph changes — a supplemental debugging aid, never load-bearing
// for routing decisions.
func (s *Server) handleStream(c *websocket.Conn) {
	serviceUID, err := uuid.Parse(fmt.Sprint(c.Locals("service_uuid")))
	if err != nil {
		_ = c.Close()
		return
	}

	ch := make(chan string, 8)
	s.subscribe(serviceUID, ch)
	defer s.unsubscribe(serviceUID, ch)

	for msg := range ch {
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}
}

func (s *Server) subscribe(serviceUID uuid.UUID, ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamers[serviceUID] = append(s.streamers[serviceUID], ch)
}

func (s *Server) unsubscribe(serviceUID uuid.UUID, ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chans := s.streamers[serviceUID]
	for i, c := range chans {
		if c == ch {
			s.streamers[serviceUID] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
}

// NotifyGraphChanged fans out a change notification to every
// subscriber of serviceUID's debug stream. Non-blocking: a slow
// subscriber drops messages rather than stalling the notifier.
func (s *Server) NotifyGraphChanged(serviceUID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := fmt.Sprintf("graph changed at %s", time.Now().UTC().Format(time.RFC3339))
	for _, ch := range s.streamers[serviceUID] {
		select {
		case ch <- msg:
		default:
		}
	}
}
