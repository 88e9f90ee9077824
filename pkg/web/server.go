// Package web serves the kiosk control surface: an HTTP API driving the
// intake flow plus websocket feeds for session events and preview frames.
package web

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/capture"
	"github.com/teslashibe/go-intake/pkg/hub"
	"github.com/teslashibe/go-intake/pkg/intake"
	"github.com/teslashibe/go-intake/pkg/segmentation"
)

// Deps are the components the server drives.
type Deps struct {
	Controller *capture.Controller
	Rating     *capture.Rating
	Form       *intake.Form
	Submitter  intake.Submitter
	Camera     *camera.Manager
	Model      *segmentation.Model // nil when segmentation is disabled
}

// EventMessage is sent on /ws/status.
type EventMessage struct {
	Type    string                `json:"type"` // state, overlay, status
	Event   *capture.Event        `json:"event,omitempty"`
	Overlay *capture.OverlayEvent `json:"overlay,omitempty"`
	Status  *Status               `json:"status,omitempty"`
}

// Server is the kiosk HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	deps   Deps
	logger *slog.Logger

	// Hubs for websocket broadcast
	statusHub  *hub.Hub
	previewHub *hub.Hub
}

// NewServer creates the server and registers its routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:       addr,
		deps:       deps,
		logger:     logger,
		statusHub:  hub.New("status", logger),
		previewHub: hub.New("preview", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Intake Kiosk",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/capture", s.handleCapture)
	api.Get("/capture/image", s.handleImage)
	api.Get("/capture/overlay", s.handleOverlay)
	api.Get("/rating", s.handleGetRating)
	api.Put("/rating", s.handleSetRating)
	api.Get("/options", s.handleOptions)
	api.Put("/questionnaire", s.handleQuestionnaire)
	api.Post("/audio", s.handleAudio)
	api.Post("/submit", s.handleSubmit)
	api.Post("/reset", s.handleReset)
	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Put("/camera/config", s.handleSetCameraConfig)
	api.Get("/camera/presets", s.handleCameraPresets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartHubs runs the websocket hubs until ctx is cancelled.
func (s *Server) StartHubs(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.previewHub.Run(ctx)
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.StartHubs(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control surface listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// PublishEvent forwards a capture state change to status clients.
func (s *Server) PublishEvent(ev capture.Event) {
	if err := s.statusHub.BroadcastJSON(EventMessage{Type: "state", Event: &ev}); err != nil {
		s.logger.Warn("failed to encode event", "error", err)
	}
}

// PublishOverlay announces a rendered overlay and pushes it to preview clients.
func (s *Server) PublishOverlay(ev capture.OverlayEvent) {
	if err := s.statusHub.BroadcastJSON(EventMessage{Type: "overlay", Overlay: &ev}); err != nil {
		s.logger.Warn("failed to encode overlay event", "error", err)
	}
	if s.deps.Controller == nil {
		return
	}
	data, err := s.deps.Controller.Preview().PNG()
	if err != nil {
		return
	}
	s.previewHub.BroadcastBinary(data)
}

// SendPreviewFrame encodes a viewfinder frame and sends it to preview clients.
func (s *Server) SendPreviewFrame(img image.Image) {
	if s.previewHub.ClientCount() == 0 {
		return
	}
	quality := camera.DefaultConfig().Quality
	if s.deps.Camera != nil {
		quality = s.deps.Camera.GetConfig().Quality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		s.logger.Debug("preview frame encode failed", "error", err)
		return
	}
	s.previewHub.BroadcastBinary(buf.Bytes())
}

// StatusHub returns the status hub
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// PreviewHub returns the preview hub
func (s *Server) PreviewHub() *hub.Hub {
	return s.previewHub
}

// errorJSON writes {"error": msg} with the given status.
func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// isClosed reports whether err means the server is going away.
func isClosed(err error) bool {
	return errors.Is(err, capture.ErrClosed)
}
