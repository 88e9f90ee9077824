package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"
)

// MockDevice is a camera for tests and hardware-free kiosks.
// All behavior can be customized via function fields.
type MockDevice struct {
	// Width and Height are the natural size of generated frames.
	Width  int
	Height int

	// AcquireFunc replaces the default acquisition when set.
	AcquireFunc func(ctx context.Context) (Stream, error)

	// FrameFunc renders frame n. Defaults to a moving gradient.
	FrameFunc func(n int, w, h int) image.Image

	mu      sync.Mutex
	streams []*MockStream
	calls   atomic.Int64
}

// NewMockDevice creates a mock camera producing w x h frames.
func NewMockDevice(w, h int) *MockDevice {
	return &MockDevice{Width: w, Height: h}
}

// Name returns "mock".
func (d *MockDevice) Name() string {
	return string(BackendMock)
}

// Acquire returns a new MockStream, or the result of AcquireFunc.
func (d *MockDevice) Acquire(ctx context.Context) (Stream, error) {
	d.calls.Add(1)
	if d.AcquireFunc != nil {
		return d.AcquireFunc(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := NewMockStream(d.Width, d.Height)
	if d.FrameFunc != nil {
		s.FrameFunc = d.FrameFunc
	}

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// AcquireCount returns how many times Acquire was called.
func (d *MockDevice) AcquireCount() int {
	return int(d.calls.Load())
}

// Streams returns every stream handed out so far.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]*MockStream, len(d.streams))
	copy(result, d.streams)
	return result
}

// MockStream is a synthetic live stream.
type MockStream struct {
	Width  int
	Height int

	// MetadataErr, when set, is returned by Metadata.
	MetadataErr error

	// MetadataDelay delays Metadata to simulate a slow camera start.
	MetadataDelay time.Duration

	// FrameErr, when set, is returned by Frame.
	FrameErr error

	// FrameDelay delays Frame to simulate a stalled camera.
	FrameDelay time.Duration

	// FrameFunc renders frame n.
	FrameFunc func(n int, w, h int) image.Image

	id     string
	frames atomic.Int64

	mu        sync.Mutex
	stopped   bool
	stopCalls int
}

var mockStreamSeq atomic.Int64

// NewMockStream creates a running mock stream.
func NewMockStream(w, h int) *MockStream {
	return &MockStream{
		Width:     w,
		Height:    h,
		FrameFunc: GradientFrame,
		id:        fmt.Sprintf("mock-%d", mockStreamSeq.Add(1)),
	}
}

func (s *MockStream) ID() string {
	return s.id
}

func (s *MockStream) Metadata(ctx context.Context) (Metadata, error) {
	if s.MetadataDelay > 0 {
		select {
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		case <-time.After(s.MetadataDelay):
		}
	}
	if s.MetadataErr != nil {
		return Metadata{}, s.MetadataErr
	}
	if !s.Active() {
		return Metadata{}, ErrStreamStopped
	}
	return Metadata{Width: s.Width, Height: s.Height, Label: s.id}, nil
}

func (s *MockStream) Frame(ctx context.Context) (image.Image, error) {
	if s.FrameDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.FrameDelay):
		}
	}
	if !s.Active() {
		return nil, ErrStreamStopped
	}
	if s.FrameErr != nil {
		return nil, s.FrameErr
	}
	n := int(s.frames.Add(1))
	return s.FrameFunc(n, s.Width, s.Height), nil
}

func (s *MockStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stopCalls++
	return nil
}

// Stopped reports whether Stop has been called.
func (s *MockStream) Stopped() bool {
	return !s.Active()
}

// StopCalls returns the number of Stop calls.
func (s *MockStream) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// FramesServed returns the number of frames handed out.
func (s *MockStream) FramesServed() int {
	return int(s.frames.Load())
}

// GradientFrame draws a diagonal gradient shifted by n, so consecutive
// frames differ.
func GradientFrame(n int, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + n) % 256),
				G: uint8((y + n) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}
