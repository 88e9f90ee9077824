// Package overlay renders body-part maps as colored masks over photos.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-intake/pkg/segmentation"
)

var (
	// ErrNoPartMap is returned when there is nothing to draw.
	ErrNoPartMap = errors.New("overlay: no part map")

	// ErrEmptyCanvas is returned when encoding a canvas with no content.
	ErrEmptyCanvas = errors.New("overlay: canvas is empty")

	// ErrNoSource is returned when the source image is missing or empty.
	ErrNoSource = errors.New("overlay: no source image")
)

// Options configures a Compositor.
type Options struct {
	Opacity        float64 `yaml:"opacity" json:"opacity"`
	BlurAmount     float64 `yaml:"blur" json:"blur"`
	FlipHorizontal bool    `yaml:"flip_horizontal" json:"flip_horizontal"`
	Background     string  `yaml:"background" json:"background"`
	Palette        string  `yaml:"palette" json:"palette"`
}

// DefaultOptions returns the confirmation overlay defaults.
func DefaultOptions() Options {
	return Options{
		Opacity:    0.7,
		BlurAmount: 0,
		Background: "#000000",
		Palette:    "rainbow",
	}
}

// Validate checks option ranges and parses colors.
func (o Options) Validate() error {
	if o.Opacity < 0 || o.Opacity > 1 {
		return fmt.Errorf("overlay: opacity must be in [0,1], got %v", o.Opacity)
	}
	if o.BlurAmount < 0 {
		return fmt.Errorf("overlay: blur must be >= 0, got %v", o.BlurAmount)
	}
	if _, err := ParseColor(o.Background); err != nil {
		return err
	}
	if _, err := PaletteByName(o.Palette); err != nil {
		return err
	}
	return nil
}

// Compositor draws colored part masks over source images.
type Compositor struct {
	Opacity        float64
	BlurAmount     float64
	FlipHorizontal bool
	Background     color.RGBA
	Palette        Palette
}

// NewCompositor builds a Compositor from options.
func NewCompositor(opts Options) (*Compositor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bg, _ := ParseColor(opts.Background)
	palette, _ := PaletteByName(opts.Palette)
	return &Compositor{
		Opacity:        opts.Opacity,
		BlurAmount:     opts.BlurAmount,
		FlipHorizontal: opts.FlipHorizontal,
		Background:     bg,
		Palette:        palette,
	}, nil
}

// Composite draws src onto canvas and overlays the colored part mask at
// Opacity. Calling it again with the same inputs yields the same pixels.
func (c *Compositor) Composite(canvas *Canvas, src image.Image, parts *segmentation.PartMap) error {
	if parts == nil {
		return ErrNoPartMap
	}
	if src == nil || src.Bounds().Empty() {
		return ErrNoSource
	}
	if err := parts.Validate(); err != nil {
		return err
	}

	bounds := src.Bounds()
	mask := ColoredPartMask(parts, c.Palette, c.Background)
	if parts.Width != bounds.Dx() || parts.Height != bounds.Dy() {
		mask = imaging.Resize(mask, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)
	}
	if c.BlurAmount > 0 {
		mask = imaging.Blur(mask, c.BlurAmount)
	}

	out := imaging.Overlay(imaging.Clone(src), mask, image.Pt(0, 0), c.Opacity)
	if c.FlipHorizontal {
		out = imaging.FlipH(out)
	}
	canvas.Set(out)
	return nil
}
