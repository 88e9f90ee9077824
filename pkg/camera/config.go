// Package camera provides camera acquisition for the intake kiosk.
//
// A Device hands out live Streams, the same way a browser's getUserMedia
// does: the caller owns the stream and must Stop it, which stops every track.
// Two backends exist:
//   - mediadevices - V4L2/AVFoundation webcams through pion/mediadevices
//   - mock - synthetic frames for CI and tests
//
// Config is runtime-tunable through Manager, which follows the same pattern
// as the other tunables in this repository.
package camera

import "fmt"

// Backend selects the camera implementation.
type Backend string

const (
	// BackendAuto uses mediadevices.
	BackendAuto Backend = "auto"
	// BackendMediaDevices uses pion/mediadevices.
	BackendMediaDevices Backend = "mediadevices"
	// BackendMock uses synthetic frames.
	BackendMock Backend = "mock"
)

// Config holds all camera configuration parameters.
// Width, Height and Framerate are ideal values: the driver may pick the
// closest supported mode, and the capture pipeline always uses the
// dimensions of the frames it actually receives.
type Config struct {
	Backend Backend `json:"backend" yaml:"backend"`

	// Device is a driver label or video path ("" = first available).
	Device string `json:"device" yaml:"device"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Ideal frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Ideal frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Ideal FPS

	// Quality is the JPEG quality used for viewfinder frames (1-100).
	Quality int `json:"quality" yaml:"quality"`

	// PreviewFPS is how often the viewfinder pushes live frames while settling.
	PreviewFPS int `json:"preview_fps" yaml:"preview_fps"`
}

// Limits accepted by Validate.
const (
	MaxWidth      = 4096
	MaxHeight     = 2160
	MaxFramerate  = 120
	MaxPreviewFPS = 30
)

// DefaultConfig returns the kiosk defaults: VGA, which every webcam supports.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		Width:      640,
		Height:     480,
		Framerate:  30,
		Quality:    80,
		PreviewFPS: 10,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case "", BackendAuto, BackendMediaDevices, BackendMock:
	default:
		errors = append(errors, fmt.Sprintf("backend must be auto, mediadevices or mock (got %q)", c.Backend))
	}

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.PreviewFPS < 0 || c.PreviewFPS > MaxPreviewFPS {
		errors = append(errors, fmt.Sprintf("preview_fps must be between 0 and %d", MaxPreviewFPS))
	}

	return errors
}
