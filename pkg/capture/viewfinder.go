package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-intake/pkg/camera"
)

// Viewfinder shows a live stream while a session settles.
type Viewfinder interface {
	// Attach starts showing stream. The returned detach function stops it
	// and returns only once the stream is no longer read.
	Attach(stream camera.Stream) (detach func())
}

// LiveView pumps frames from the attached stream to a sink at a fixed rate.
type LiveView struct {
	clock    clock.Clock
	interval time.Duration
	sink     func(image.Image)
	logger   *slog.Logger
}

// NewLiveView creates a viewfinder delivering fps frames per second to sink.
func NewLiveView(clk clock.Clock, fps int, sink func(image.Image), logger *slog.Logger) *LiveView {
	if clk == nil {
		clk = clock.New()
	}
	if fps <= 0 {
		fps = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveView{
		clock:    clk,
		interval: time.Second / time.Duration(fps),
		sink:     sink,
		logger:   logger,
	}
}

// Attach starts the frame pump.
func (v *LiveView) Attach(stream camera.Stream) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := v.clock.Ticker(v.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				img, err := stream.Frame(ctx)
				if errors.Is(err, camera.ErrStreamStopped) {
					return
				}
				if err != nil {
					v.logger.Debug("viewfinder frame skipped", "stream", stream.ID(), "error", err)
					continue
				}
				v.sink(img)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
