// Package capture runs photo capture sessions: open the camera, let it
// settle, grab one frame, publish it and render a body-part overlay in the
// background. Camera resources are released on every exit path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/overlay"
	"github.com/teslashibe/go-intake/pkg/segmentation"
)

// DefaultSettleDelay gives exposure and focus time to settle and the
// patient time to pose.
const DefaultSettleDelay = 3 * time.Second

// Segmenter produces part maps. *segmentation.Model implements it.
type Segmenter interface {
	Ready() bool
	Segment(ctx context.Context, img image.Image) (*segmentation.PartMap, error)
}

// Compositor renders a part map over an image. *overlay.Compositor
// implements it.
type Compositor interface {
	Composite(canvas *overlay.Canvas, src image.Image, parts *segmentation.PartMap) error
}

// Config wires a Controller.
type Config struct {
	Device     camera.Device // required
	Publisher  Publisher     // required
	Segmenter  Segmenter
	Compositor Compositor
	Rating     RatingSource
	Viewfinder Viewfinder

	// SettleDelay defaults to DefaultSettleDelay.
	SettleDelay time.Duration

	// Clock defaults to the wall clock.
	Clock  clock.Clock
	Logger *slog.Logger
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State  `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// session is one capture attempt. It owns the stream, the viewfinder
// attachment and the off-screen canvas.
type session struct {
	id     string
	gen    uint64
	stream camera.Stream
	detach func()
	canvas *overlay.Canvas
}

// Controller runs at most one capture session at a time.
type Controller struct {
	device      camera.Device
	publisher   Publisher
	segmenter   Segmenter
	compositor  Compositor
	rating      RatingSource
	viewfinder  Viewfinder
	settleDelay time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	preview *overlay.Canvas

	mu        sync.Mutex
	state     State
	sessionID string
	closed    bool

	// overlayGen advances on every new session and on ClearOverlay. An
	// overlay job only draws to preview if its generation is still current.
	overlayGen uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cbMu          sync.RWMutex
	onStateChange func(Event)
	onOverlay     func(OverlayEvent)
}

// NewController creates an idle controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Device == nil {
		return nil, errors.New("capture: camera device is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("capture: publisher is required")
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("capture: settle delay must be >= 0, got %v", cfg.SettleDelay)
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Rating == nil {
		cfg.Rating = NewRating()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		device:      cfg.Device,
		publisher:   cfg.Publisher,
		segmenter:   cfg.Segmenter,
		compositor:  cfg.Compositor,
		rating:      cfg.Rating,
		viewfinder:  cfg.Viewfinder,
		settleDelay: cfg.SettleDelay,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("component", "capture"),
		preview:     overlay.NewCanvas(),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// OnStateChange registers a callback for every state transition.
func (c *Controller) OnStateChange(fn func(Event)) {
	c.cbMu.Lock()
	c.onStateChange = fn
	c.cbMu.Unlock()
}

// OnOverlay registers a callback for every rendered overlay.
func (c *Controller) OnOverlay(fn func(OverlayEvent)) {
	c.cbMu.Lock()
	c.onOverlay = fn
	c.cbMu.Unlock()
}

// Preview returns the canvas the confirmation overlay is drawn on.
// It only ever holds the overlay of the latest session.
func (c *Controller) Preview() *overlay.Canvas {
	return c.preview
}

// ClearOverlay drops the current overlay and discards any overlay job
// still running.
func (c *Controller) ClearOverlay() {
	c.mu.Lock()
	c.overlayGen++
	c.preview.Clear()
	c.mu.Unlock()
}

// Status returns the current state and session id.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, SessionID: c.sessionID}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.Status().State
}

// SettleDelay returns the configured settle delay.
func (c *Controller) SettleDelay() time.Duration {
	return c.settleDelay
}

// Capture runs a session and blocks until it has been cleaned up.
// Cancelling ctx aborts the session; cleanup still runs.
func (c *Controller) Capture(ctx context.Context) (*CapturedFrame, error) {
	s, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	return c.run(ctx, s)
}

// Start runs a session in the background and returns its id. The session
// is bounded by the controller's lifetime.
func (c *Controller) Start() (string, error) {
	s, err := c.begin()
	if err != nil {
		return "", err
	}
	go func() {
		defer c.wg.Done()
		c.run(c.ctx, s)
	}()
	return s.id, nil
}

// Wait blocks until every session and overlay job has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close aborts any active session and waits for background work.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// begin claims the controller for a new session.
func (c *Controller) begin() (*session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	c.overlayGen++
	c.preview.Clear()
	s := &session{id: uuid.NewString(), gen: c.overlayGen, canvas: overlay.NewCanvas()}
	c.sessionID = s.id
	c.state = StateAcquiringDevice
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(Event{SessionID: s.id, State: StateAcquiringDevice, Previous: StateIdle})
	return s, nil
}

func (c *Controller) transition(s *session, to State, err error) {
	c.mu.Lock()
	from := c.state
	c.state = to
	if to == StateIdle {
		c.sessionID = ""
	}
	c.mu.Unlock()

	ev := Event{SessionID: s.id, State: to, Previous: from}
	if err != nil {
		ev.Error = err.Error()
	}
	c.emit(ev)
}

func (c *Controller) emit(ev Event) {
	ev.Time = c.clock.Now()
	c.cbMu.RLock()
	fn := c.onStateChange
	c.cbMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *Controller) run(ctx context.Context, s *session) (frame *CapturedFrame, err error) {
	logger := c.logger.With("session_id", s.id)
	defer func() { c.cleanup(s, err, logger) }()

	logger.Info("capture session started", "device", c.device.Name())

	stream, err := c.device.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DeviceAccessError{Err: err}
	}
	s.stream = stream

	meta, err := stream.Metadata(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DeviceAccessError{Err: err}
	}
	s.canvas.Resize(meta.Width, meta.Height)
	if c.viewfinder != nil {
		s.detach = c.viewfinder.Attach(stream)
	}

	timer := c.clock.Timer(c.settleDelay)
	defer timer.Stop()
	c.transition(s, StateSettling, nil)
	logger.Debug("settling", "width", meta.Width, "height", meta.Height, "delay", c.settleDelay)

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	frame, img, err := c.grab(ctx, s)
	if err != nil {
		return nil, err
	}
	frame.Rating = c.rating.Value()

	c.transition(s, StateCaptured, nil)
	c.publisher.Publish(frame.File(), frame.Rating)
	logger.Info("image captured",
		"width", frame.Width,
		"height", frame.Height,
		"bytes", len(frame.PNG),
		"rating", frame.Rating,
	)

	c.startOverlay(s, img, logger)
	return frame, nil
}

// grab draws the current frame into the session canvas and encodes it.
func (c *Controller) grab(ctx context.Context, s *session) (*CapturedFrame, image.Image, error) {
	w, h := s.canvas.Size()
	if w == 0 || h == 0 {
		return nil, nil, &CaptureError{Stage: StageCanvas, Err: errors.New("capture surface has no size")}
	}

	img, err := s.stream.Frame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &CaptureError{Stage: StageFrame, Err: err}
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return nil, nil, &CaptureError{
			Stage: StageFrame,
			Err:   fmt.Errorf("frame is %dx%d, canvas is %dx%d", b.Dx(), b.Dy(), w, h),
		}
	}

	s.canvas.Set(imaging.Clone(img))
	data, err := s.canvas.PNG()
	if err != nil {
		return nil, nil, &CaptureError{Stage: StageEncode, Err: err}
	}

	return &CapturedFrame{
		SessionID:  s.id,
		PNG:        data,
		Width:      w,
		Height:     h,
		CapturedAt: c.clock.Now(),
	}, s.canvas.Image(), nil
}

// startOverlay segments img and renders the overlay in the background.
// The result is dropped if another session has started meanwhile.
func (c *Controller) startOverlay(s *session, img image.Image, logger *slog.Logger) {
	if c.segmenter == nil || c.compositor == nil {
		return
	}
	if !c.segmenter.Ready() {
		logger.Debug("segmentation model not ready, overlay skipped")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		parts, err := c.segmenter.Segment(c.ctx, img)
		if err != nil {
			logger.Warn("overlay skipped", "error", &SegmentationError{SessionID: s.id, Err: err})
			return
		}
		if parts == nil {
			logger.Debug("no part map, overlay skipped")
			return
		}
		out := overlay.NewCanvas()
		if err := c.compositor.Composite(out, img, parts); err != nil {
			logger.Warn("overlay composite failed", "error", err)
			return
		}
		if !c.showOverlay(s.gen, out) {
			logger.Debug("overlay superseded, dropped")
			return
		}

		ev := OverlayEvent{
			SessionID:    s.id,
			DominantPart: parts.DominantPart().String(),
			Coverage:     parts.Coverage(),
		}
		logger.Debug("overlay rendered", "dominant_part", ev.DominantPart, "coverage", ev.Coverage)

		c.cbMu.RLock()
		fn := c.onOverlay
		c.cbMu.RUnlock()
		if fn != nil {
			fn(ev)
		}
	}()
}

// showOverlay moves a rendered overlay to preview if gen is current.
func (c *Controller) showOverlay(gen uint64, out *overlay.Canvas) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.overlayGen {
		return false
	}
	c.preview.Set(out.Image())
	return true
}

// cleanup releases everything the session holds and returns to idle.
func (c *Controller) cleanup(s *session, cause error, logger *slog.Logger) {
	c.transition(s, StateCleaning, cause)

	if s.detach != nil {
		s.detach()
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			logger.Warn("failed to stop camera stream", "stream", s.stream.ID(), "error", err)
		}
	}
	s.canvas.Clear()

	switch {
	case cause == nil:
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		logger.Info("capture session cancelled")
	default:
		logger.Warn("capture session failed", "error", cause)
	}

	c.transition(s, StateIdle, nil)
}
