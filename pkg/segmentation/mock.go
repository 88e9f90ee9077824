package segmentation

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Engine for testing.
type Mock struct {
	// LoadFunc is called when Load is invoked. If nil, Load succeeds.
	LoadFunc func(ctx context.Context) error

	// SegmentFunc is called when Segment is invoked.
	// If nil, the left half of the image is labelled torso_front.
	SegmentFunc func(ctx context.Context, img image.Image) (*PartMap, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a new mock engine with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// Load calls LoadFunc and records the call.
func (m *Mock) Load(ctx context.Context) error {
	m.record("Load")
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return nil
}

// Segment calls SegmentFunc and records the call.
func (m *Mock) Segment(ctx context.Context, img image.Image) (*PartMap, error) {
	m.record("Segment")
	if m.SegmentFunc != nil {
		return m.SegmentFunc(ctx, img)
	}
	b := img.Bounds()
	pm := NewPartMap(b.Dx(), b.Dy())
	for y := 0; y < pm.Height; y++ {
		for x := 0; x < pm.Width/2; x++ {
			pm.Set(x, y, 12) // torso_front
		}
	}
	return pm, nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}
