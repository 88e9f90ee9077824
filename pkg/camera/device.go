package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Sentinel errors for acquisition and streaming.
var (
	// ErrPermissionDenied is returned when the OS refuses access to the camera.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrNoDevice is returned when no camera matches the configuration.
	ErrNoDevice = errors.New("camera: no device available")

	// ErrStreamStopped is returned when reading from a stopped stream.
	ErrStreamStopped = errors.New("camera: stream stopped")

	// ErrNoFrame is returned when the stream has not delivered a frame.
	ErrNoFrame = errors.New("camera: no frame available")
)

// Metadata describes a live stream once its first frame has arrived.
type Metadata struct {
	// Width and Height are the natural dimensions of delivered frames.
	Width  int
	Height int

	// Label identifies the device the stream came from.
	Label string
}

// Size returns the natural frame size as a point.
func (m Metadata) Size() image.Point {
	return image.Pt(m.Width, m.Height)
}

// Device acquires live camera streams.
type Device interface {
	// Acquire opens the camera and returns a live stream.
	// Errors wrap ErrPermissionDenied or ErrNoDevice where they can be classified.
	Acquire(ctx context.Context) (Stream, error)

	// Name returns the backend name (e.g., "mediadevices", "mock").
	Name() string
}

// Stream is a live video stream owned by exactly one caller.
type Stream interface {
	// ID identifies the stream for logging.
	ID() string

	// Metadata blocks until the first frame has arrived and reports its size.
	Metadata(ctx context.Context) (Metadata, error)

	// Frame returns a copy of the current frame. It returns ctx.Err() if
	// ctx ends before the camera delivers one.
	Frame(ctx context.Context) (image.Image, error)

	// Active reports whether any track is still running.
	Active() bool

	// Stop stops every track of the stream.
	// It is safe to call Stop multiple times.
	Stop() error
}

// NewDevice creates a device for the backend named in the manager's config.
func NewDevice(m *Manager, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := m.GetConfig()
	switch cfg.Backend {
	case BackendMock:
		logger.Info("creating camera device", "backend", BackendMock)
		return NewMockDevice(cfg.Width, cfg.Height), nil
	case "", BackendAuto, BackendMediaDevices:
		logger.Info("creating camera device",
			"backend", BackendMediaDevices,
			"width", cfg.Width,
			"height", cfg.Height,
			"framerate", cfg.Framerate,
		)
		return NewMediaDevice(m, logger), nil
	default:
		return nil, fmt.Errorf("unsupported camera backend: %s", cfg.Backend)
	}
}
