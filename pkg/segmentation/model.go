package segmentation

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"
)

// LoadState is the lifecycle state of a Model.
type LoadState int

const (
	// StatePending means no load has been attempted.
	StatePending LoadState = iota
	// StateLoading means the load is in progress.
	StateLoading
	// StateReady means the engine is usable.
	StateReady
	// StateFailed means the load failed; it is never retried.
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Model is the process-wide handle on a segmentation engine.
type Model struct {
	engine Engine
	logger *slog.Logger

	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	state LoadState
	err   error
}

// NewModel wraps engine. Nothing is loaded until Load or LoadAsync.
func NewModel(engine Engine, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		engine: engine,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// LoadAsync starts the single load attempt in the background.
// Later calls, and calls after Load, do nothing.
func (m *Model) LoadAsync(ctx context.Context) {
	m.once.Do(func() {
		m.setState(StateLoading, nil)
		go m.run(ctx)
	})
}

// Load starts the single load attempt if needed and waits for its outcome.
// Concurrent and later callers share the first attempt.
func (m *Model) Load(ctx context.Context) error {
	m.LoadAsync(ctx)

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.Err()
}

func (m *Model) run(ctx context.Context) {
	defer close(m.done)
	start := time.Now()

	err := m.engine.Load(ctx)
	if err != nil {
		var loadErr *ModelLoadError
		if !errors.As(err, &loadErr) {
			err = &ModelLoadError{Source: "engine", Err: err}
		}
		m.setState(StateFailed, err)
		m.logger.Error("segmentation model unavailable, overlays disabled", "error", err)
		return
	}
	m.setState(StateReady, nil)
	m.logger.Info("segmentation model loaded", "duration_ms", time.Since(start).Milliseconds())
}

func (m *Model) setState(s LoadState, err error) {
	m.mu.Lock()
	m.state, m.err = s, err
	m.mu.Unlock()
}

// State returns the current load state.
func (m *Model) State() LoadState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the load error, if the load failed.
func (m *Model) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Ready reports whether Segment can be used.
func (m *Model) Ready() bool {
	return m.State() == StateReady
}

// Done is closed once the load attempt has finished, successfully or not.
func (m *Model) Done() <-chan struct{} {
	return m.done
}

// Segment runs the engine, or returns ErrModelUnavailable when not ready.
func (m *Model) Segment(ctx context.Context, img image.Image) (*PartMap, error) {
	if !m.Ready() {
		return nil, ErrModelUnavailable
	}
	return m.engine.Segment(ctx, img)
}

// Close releases the engine.
func (m *Model) Close() error {
	return m.engine.Close()
}
