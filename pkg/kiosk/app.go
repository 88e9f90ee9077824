package kiosk

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/capture"
	"github.com/teslashibe/go-intake/pkg/intake"
	"github.com/teslashibe/go-intake/pkg/overlay"
	"github.com/teslashibe/go-intake/pkg/segmentation"
	"github.com/teslashibe/go-intake/pkg/web"
)

// modelCloseWait bounds how long Shutdown waits for a cancelled model load.
const modelCloseWait = 2 * time.Second

// App is the kiosk orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Lifetime of background work started by Init (model fetch).
	ctx    context.Context
	cancel context.CancelFunc

	// Camera
	cameraManager *camera.Manager
	device        camera.Device

	// Segmentation
	model      *segmentation.Model
	compositor *overlay.Compositor

	// Intake
	rating    *capture.Rating
	form      *intake.Form
	submitter intake.Submitter

	controller *capture.Controller
	server     *web.Server
}

// New creates a kiosk with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		logger: logger,
	}, nil
}

// Init initializes all components and starts the model download.
// Call this after New() and before Run().
func (a *App) Init() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.cameraManager = camera.NewManager(a.config.Camera)
	a.cameraManager.OnChange(func(old, cur camera.Config) {
		a.logger.Info("camera config changed, applies to next capture",
			"width", cur.Width,
			"height", cur.Height,
			"framerate", cur.Framerate,
			"device", cur.Device,
		)
	})
	device, err := camera.NewDevice(a.cameraManager, a.logger.With("component", "camera"))
	if err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	a.device = device

	a.compositor, err = overlay.NewCompositor(a.config.Overlay)
	if err != nil {
		return fmt.Errorf("overlay init: %w", err)
	}

	if a.config.Model.Enabled {
		modelLogger := a.logger.With("component", "segmentation")
		engine := segmentation.NewBodyPix(a.config.Model.Config, modelLogger)
		a.model = segmentation.NewModel(engine, modelLogger)
		a.logger.Info("loading segmentation model", "url", a.config.Model.ModelURL)
		a.model.LoadAsync(a.ctx)
	} else {
		a.logger.Info("segmentation disabled, overlays will be skipped")
	}

	a.rating = capture.NewRating()
	a.form = intake.NewForm(a.logger.With("component", "intake"))
	if a.config.Submit.URL != "" {
		a.submitter = intake.NewHTTPSubmitter(a.config.Submit.URL)
	}

	if err := a.initController(); err != nil {
		return fmt.Errorf("capture init: %w", err)
	}

	a.server = web.NewServer(a.config.Listen, web.Deps{
		Controller: a.controller,
		Rating:     a.rating,
		Form:       a.form,
		Submitter:  a.submitter,
		Camera:     a.cameraManager,
		Model:      a.model,
	}, a.logger)

	a.controller.OnStateChange(a.server.PublishEvent)
	a.controller.OnOverlay(a.server.PublishOverlay)
	return nil
}

// initController builds the capture controller over the initialized parts.
func (a *App) initController() error {
	cfg := capture.Config{
		Device:      a.device,
		Publisher:   a.form,
		Compositor:  a.compositor,
		Rating:      a.rating,
		SettleDelay: a.config.Capture.SettleDelay,
		Logger:      a.logger.With("component", "capture"),
	}
	if a.model != nil {
		cfg.Segmenter = a.model
	}
	if fps := a.config.Camera.PreviewFPS; fps > 0 {
		cfg.Viewfinder = capture.NewLiveView(nil, fps, a.sendPreview, a.logger.With("component", "viewfinder"))
	}

	ctrl, err := capture.NewController(cfg)
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

// sendPreview forwards viewfinder frames once the server exists.
func (a *App) sendPreview(img image.Image) {
	if a.server != nil {
		a.server.SendPreviewFrame(img)
	}
}

// Run serves the control surface.
// Blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("intake kiosk ready",
		"listen", a.config.Listen,
		"camera", a.device.Name(),
		"settle_delay", a.controller.SettleDelay(),
		"submit_url", a.config.Submit.URL,
	)
	return a.server.Run(ctx)
}

// Shutdown aborts any session in flight and releases the model.
func (a *App) Shutdown() {
	a.logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.controller != nil {
		if err := a.controller.Close(); err != nil {
			a.logger.Warn("controller close failed", "error", err)
		}
	}
	if a.model != nil {
		select {
		case <-a.model.Done():
		case <-time.After(modelCloseWait):
			a.logger.Warn("model load still running at shutdown")
		}
		if err := a.model.Close(); err != nil {
			a.logger.Warn("model close failed", "error", err)
		}
	}
}

// Server returns the control surface.
func (a *App) Server() *web.Server {
	return a.server
}

// Controller returns the capture controller.
func (a *App) Controller() *capture.Controller {
	return a.controller
}

// Model returns the segmentation model, or nil when disabled.
func (a *App) Model() *segmentation.Model {
	return a.model
}
