package segmentation

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/teslashibe/go-intake/internal/httpc"
	"gocv.io/x/gocv"
)

// Config holds BodyPix engine configuration.
type Config struct {
	// ModelURL is an http(s) URL, file:// URL or local path of the ONNX model.
	ModelURL string `yaml:"url" json:"url"`

	// InputWidth and InputHeight are the network input resolution.
	InputWidth  int `yaml:"input_width" json:"input_width"`
	InputHeight int `yaml:"input_height" json:"input_height"`

	// SegmentationThreshold is the minimum person probability (0-1).
	SegmentationThreshold float64 `yaml:"segmentation_threshold" json:"segmentation_threshold"`

	// Output layer names.
	SegmentsOutput string `yaml:"segments_output" json:"segments_output"`
	PartsOutput    string `yaml:"parts_output" json:"parts_output"`

	// MaxModelBytes caps the download size.
	MaxModelBytes int64 `yaml:"max_model_bytes" json:"max_model_bytes"`
}

// DefaultModelURL is where the kiosk fetches the BodyPix ONNX export when
// no other source is configured: the intake backend's static model route.
const DefaultModelURL = "http://localhost:8000/models/bodypix_mobilenet_050_stride16.onnx"

// DefaultConfig returns defaults for a MobileNet BodyPix export.
func DefaultConfig() Config {
	return Config{
		ModelURL:              DefaultModelURL,
		InputWidth:            513,
		InputHeight:           513,
		SegmentationThreshold: 0.7,
		SegmentsOutput:        "float_segments",
		PartsOutput:           "float_part_heatmaps",
		MaxModelBytes:         256 << 20,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ModelURL == "" {
		return fmt.Errorf("model url is required")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.SegmentationThreshold <= 0 || c.SegmentationThreshold >= 1 {
		return fmt.Errorf("segmentation_threshold must be in (0,1), got %v", c.SegmentationThreshold)
	}
	if c.SegmentsOutput == "" || c.PartsOutput == "" {
		return fmt.Errorf("output layer names are required")
	}
	return nil
}

// BodyPix runs a BodyPix part-segmentation network through OpenCV DNN.
type BodyPix struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex // Protects inference
	net    gocv.Net
	loaded bool
}

// NewBodyPix creates an unloaded BodyPix engine.
func NewBodyPix(cfg Config, logger *slog.Logger) *BodyPix {
	if logger == nil {
		logger = slog.Default()
	}
	return &BodyPix{config: cfg, logger: logger}
}

// Load downloads the model and builds the network.
func (b *BodyPix) Load(ctx context.Context) error {
	if err := b.config.Validate(); err != nil {
		return &ModelLoadError{Source: b.config.ModelURL, Err: err}
	}

	data, err := fetchModel(ctx, b.config.ModelURL, b.config.MaxModelBytes)
	if err != nil {
		return &ModelLoadError{Source: b.config.ModelURL, Err: err}
	}
	b.logger.Debug("model asset fetched", "source", b.config.ModelURL, "bytes", len(data))

	net, err := gocv.ReadNetFromONNXBytes(data)
	if err != nil {
		return &ModelLoadError{Source: b.config.ModelURL, Err: err}
	}
	if net.Empty() {
		net.Close()
		return &ModelLoadError{Source: b.config.ModelURL, Err: fmt.Errorf("empty network")}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	b.mu.Lock()
	b.net = net
	b.loaded = true
	b.mu.Unlock()
	return nil
}

// fetchModel reads the model from a URL or the local filesystem.
func fetchModel(ctx context.Context, source string, limit int64) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return httpc.Fetch(ctx, httpc.NewClient(httpc.ModelTimeout), source, limit)
	}
	path := strings.TrimPrefix(source, "file://")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", path)
	}
	return os.ReadFile(path)
}

// Segment classifies every pixel of img.
func (b *BodyPix) Segment(ctx context.Context, img image.Image) (*PartMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		return nil, ErrNotLoaded
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	// MobileNet BodyPix expects RGB scaled to [-1, 1].
	blob := gocv.BlobFromImage(mat, 1.0/127.5,
		image.Pt(b.config.InputWidth, b.config.InputHeight),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	b.net.SetInput(blob, "")

	outputs := b.net.ForwardLayers([]string{b.config.SegmentsOutput, b.config.PartsOutput})
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()
	if len(outputs) != 2 {
		return nil, fmt.Errorf("%w: got %d outputs", ErrUnexpectedOutput, len(outputs))
	}

	segments, err := outputs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read segments: %w", err)
	}
	heatmaps, err := outputs[1].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read part heatmaps: %w", err)
	}

	grid, err := decodeParts(segments, outputs[0].Size(), heatmaps, outputs[1].Size(), b.config.SegmentationThreshold)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return grid.Scale(bounds.Dx(), bounds.Dy()), nil
}

// Close releases the network.
func (b *BodyPix) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		b.net.Close()
		b.loaded = false
	}
	return nil
}

// tensorLayout describes a 4-D output tensor.
type tensorLayout struct {
	h, w, c      int
	channelsLast bool
}

func (l tensorLayout) index(y, x, c int) int {
	if l.channelsLast {
		return (y*l.w+x)*l.c + c
	}
	return c*l.h*l.w + y*l.w + x
}

// layoutOf accepts NCHW and NHWC shapes with the given channel count.
func layoutOf(shape []int, channels int) (tensorLayout, error) {
	if len(shape) == 3 {
		shape = append([]int{1}, shape...)
	}
	if len(shape) != 4 || shape[0] != 1 {
		return tensorLayout{}, fmt.Errorf("%w: shape %v", ErrUnexpectedOutput, shape)
	}
	switch {
	case shape[1] == channels:
		return tensorLayout{h: shape[2], w: shape[3], c: channels}, nil
	case shape[3] == channels:
		return tensorLayout{h: shape[1], w: shape[2], c: channels, channelsLast: true}, nil
	}
	return tensorLayout{}, fmt.Errorf("%w: shape %v has no %d-channel axis", ErrUnexpectedOutput, shape, channels)
}

// decodeParts turns BodyPix outputs into a part map at output resolution.
// A pixel is a body part when sigmoid(segment) exceeds threshold; its part
// is the argmax over the part heatmaps.
func decodeParts(segments []float32, segShape []int, heatmaps []float32, partShape []int, threshold float64) (*PartMap, error) {
	seg, err := layoutOf(segShape, 1)
	if err != nil {
		return nil, err
	}
	parts, err := layoutOf(partShape, NumParts)
	if err != nil {
		return nil, err
	}
	if seg.h != parts.h || seg.w != parts.w {
		return nil, fmt.Errorf("%w: segment grid %dx%d, part grid %dx%d",
			ErrUnexpectedOutput, seg.w, seg.h, parts.w, parts.h)
	}
	if len(segments) < seg.h*seg.w || len(heatmaps) < parts.h*parts.w*NumParts {
		return nil, fmt.Errorf("%w: output buffers too short", ErrUnexpectedOutput)
	}

	out := NewPartMap(seg.w, seg.h)
	for y := 0; y < seg.h; y++ {
		for x := 0; x < seg.w; x++ {
			if sigmoid(float64(segments[seg.index(y, x, 0)])) <= threshold {
				continue
			}
			best, bestScore := 0, float32(math.Inf(-1))
			for c := 0; c < NumParts; c++ {
				if v := heatmaps[parts.index(y, x, c)]; v > bestScore {
					best, bestScore = c, v
				}
			}
			out.Set(x, y, Part(best))
		}
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
