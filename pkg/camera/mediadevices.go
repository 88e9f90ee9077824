package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // Register camera drivers
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v3"
)

// MediaDevice acquires webcams through pion/mediadevices.
type MediaDevice struct {
	manager *Manager
	logger  *slog.Logger

	// getUserMedia is swapped in tests.
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

// NewMediaDevice creates a mediadevices-backed camera. The manager's config is
// read on every Acquire.
func NewMediaDevice(m *Manager, logger *slog.Logger) *MediaDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaDevice{
		manager:      m,
		logger:       logger,
		getUserMedia: mediadevices.GetUserMedia,
	}
}

// Name returns "mediadevices".
func (d *MediaDevice) Name() string {
	return string(BackendMediaDevices)
}

// constraints maps the config to mediadevices constraints. Resolution and
// framerate are ideals so any webcam can satisfy them.
func constraints(cfg Config) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if cfg.Device != "" {
				c.DeviceID = prop.String(cfg.Device)
			}
			c.Width = prop.IntRanged{Min: 0, Ideal: cfg.Width, Max: MaxWidth}
			c.Height = prop.IntRanged{Min: 0, Ideal: cfg.Height, Max: MaxHeight}
			c.FrameRate = prop.FloatRanged{Min: 0, Ideal: float32(cfg.Framerate), Max: MaxFramerate}
		},
	}
}

// Acquire opens the configured webcam.
func (d *MediaDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := d.manager.GetConfig()
	ms, err := d.getUserMedia(constraints(cfg))
	if err != nil {
		return nil, classify(err)
	}

	var vt *mediadevices.VideoTrack
	for _, t := range ms.GetTracks() {
		if t.Kind() != webrtc.RTPCodecTypeVideo {
			continue
		}
		if v, ok := t.(*mediadevices.VideoTrack); ok {
			vt = v
			break
		}
	}
	if vt == nil {
		stopTracks(ms)
		return nil, fmt.Errorf("%w: stream has no video track", ErrNoDevice)
	}

	s := &mediaStream{
		id:     uuid.NewString(),
		label:  vt.ID(),
		stream: ms,
		reader: vt.NewReader(false),
		logger: d.logger,
	}
	vt.OnEnded(func(err error) {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		if err != nil {
			d.logger.Warn("camera track ended", "stream", s.id, "error", err)
		}
	})

	d.logger.Debug("camera acquired", "stream", s.id, "track", s.label)
	return s, nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrNoDevice, err)
}

func stopTracks(ms mediadevices.MediaStream) error {
	var errs []error
	for _, t := range ms.GetTracks() {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mediaStream adapts a mediadevices stream to Stream.
type mediaStream struct {
	id     string
	label  string
	stream mediadevices.MediaStream
	logger *slog.Logger

	readMu sync.Mutex // video.Reader is not safe for concurrent reads
	reader video.Reader

	mu      sync.Mutex
	stopped bool
	ended   bool
}

func (s *mediaStream) ID() string {
	return s.id
}

// read pulls one frame and copies it out of the driver's buffer.
func (s *mediaStream) read() (image.Image, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if !s.Active() {
		return nil, ErrStreamStopped
	}

	img, release, err := s.reader.Read()
	if release != nil {
		defer release()
	}
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoFrame
	}
	return imaging.Clone(img), nil
}

// readContext runs read until it returns or ctx ends. An abandoned read
// finishes once Stop ends the tracks.
func (s *mediaStream) readContext(ctx context.Context) (image.Image, error) {
	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := s.read()
		ch <- result{img, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.img, r.err
	}
}

func (s *mediaStream) Metadata(ctx context.Context) (Metadata, error) {
	img, err := s.readContext(ctx)
	if err != nil {
		return Metadata{}, err
	}
	b := img.Bounds()
	return Metadata{Width: b.Dx(), Height: b.Dy(), Label: s.label}, nil
}

func (s *mediaStream) Frame(ctx context.Context) (image.Image, error) {
	return s.readContext(ctx)
}

func (s *mediaStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && !s.ended
}

func (s *mediaStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	err := stopTracks(s.stream)
	s.logger.Debug("camera released", "stream", s.id)
	return err
}
