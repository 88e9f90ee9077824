package overlay

import (
	"bytes"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// Canvas holds the most recently rendered image. Safe for concurrent use.
type Canvas struct {
	mu  sync.RWMutex
	img *image.NRGBA
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{}
}

// Resize allocates a blank w x h surface, discarding previous content.
func (c *Canvas) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w <= 0 || h <= 0 {
		c.img = nil
		return
	}
	c.img = image.NewNRGBA(image.Rect(0, 0, w, h))
}

// Size returns the canvas dimensions, zero when empty.
func (c *Canvas) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return 0, 0
	}
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Set replaces the canvas content.
func (c *Canvas) Set(img *image.NRGBA) {
	c.mu.Lock()
	c.img = img
	c.mu.Unlock()
}

// Image returns a copy of the canvas content, or nil when empty.
func (c *Canvas) Image() *image.NRGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return nil
	}
	return imaging.Clone(c.img)
}

// Empty reports whether nothing has been drawn.
func (c *Canvas) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.img == nil
}

// Clear drops the canvas content.
func (c *Canvas) Clear() {
	c.Set(nil)
}

// PNG encodes the canvas content.
func (c *Canvas) PNG() ([]byte, error) {
	return c.encode(imaging.PNG)
}

// JPEG encodes the canvas content at the given quality.
func (c *Canvas) JPEG(quality int) ([]byte, error) {
	return c.encode(imaging.JPEG, imaging.JPEGQuality(quality))
}

func (c *Canvas) encode(format imaging.Format, opts ...imaging.EncodeOption) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return nil, ErrEmptyCanvas
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, c.img, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
