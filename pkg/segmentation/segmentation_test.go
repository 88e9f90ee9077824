package segmentation

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestPartString(t *testing.T) {
	tests := []struct {
		part Part
		want string
	}{
		{0, "left_face"},
		{12, "torso_front"},
		{23, "right_foot"},
		{PartNone, "background"},
		{24, "background"},
	}
	for _, tt := range tests {
		if got := tt.part.String(); got != tt.want {
			t.Errorf("Part(%d).String() = %q, want %q", tt.part, got, tt.want)
		}
	}
}

func TestPartMapBasics(t *testing.T) {
	pm := NewPartMap(4, 2)
	if err := pm.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if pm.At(0, 0) != PartNone {
		t.Error("new map should be background")
	}
	if pm.Coverage() != 0 {
		t.Errorf("Coverage() = %v, want 0", pm.Coverage())
	}

	pm.Set(0, 0, 3)
	pm.Set(1, 0, 3)
	pm.Set(2, 0, 5)
	pm.Set(99, 99, 7) // ignored

	if got := pm.At(0, 0); got != 3 {
		t.Errorf("At(0,0) = %d, want 3", got)
	}
	if got := pm.At(-1, 0); got != PartNone {
		t.Errorf("At(-1,0) = %d, want PartNone", got)
	}
	if got := pm.Coverage(); got != 3.0/8.0 {
		t.Errorf("Coverage() = %v, want %v", got, 3.0/8.0)
	}
	if got := pm.DominantPart(); got != 3 {
		t.Errorf("DominantPart() = %d, want 3", got)
	}
	counts := pm.Counts()
	if counts[3] != 2 || counts[5] != 1 || len(counts) != 2 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestPartMapDominantTie(t *testing.T) {
	pm := NewPartMap(2, 1)
	pm.Set(0, 0, 9)
	pm.Set(1, 0, 4)
	if got := pm.DominantPart(); got != 4 {
		t.Errorf("DominantPart() = %d, want lower id 4", got)
	}
	if got := NewPartMap(1, 1).DominantPart(); got != PartNone {
		t.Errorf("empty DominantPart() = %d, want PartNone", got)
	}
}

func TestPartMapValidate(t *testing.T) {
	bad := &PartMap{Width: 2, Height: 2, Data: make([]Part, 3)}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for short data")
	}
	if err := (&PartMap{}).Validate(); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestPartMapScale(t *testing.T) {
	pm := NewPartMap(2, 2)
	pm.Set(0, 0, 1)
	pm.Set(1, 0, 2)
	pm.Set(0, 1, 3)
	pm.Set(1, 1, 4)

	up := pm.Scale(4, 4)
	if up.Width != 4 || up.Height != 4 {
		t.Fatalf("Scale size = %dx%d", up.Width, up.Height)
	}
	checks := []struct {
		x, y int
		want Part
	}{
		{0, 0, 1}, {1, 1, 1}, {2, 0, 2}, {3, 1, 2}, {0, 2, 3}, {3, 3, 4},
	}
	for _, c := range checks {
		if got := up.At(c.x, c.y); got != c.want {
			t.Errorf("At(%d,%d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}

	same := pm.Scale(2, 2)
	same.Set(0, 0, 9)
	if pm.At(0, 0) != 1 {
		t.Error("Scale to same size should copy")
	}
}

func TestLayoutOf(t *testing.T) {
	tests := []struct {
		name      string
		shape     []int
		channels  int
		wantH     int
		wantW     int
		wantLast  bool
		wantError bool
	}{
		{"nchw", []int{1, 24, 33, 17}, 24, 33, 17, false, false},
		{"nhwc", []int{1, 33, 17, 24}, 24, 33, 17, true, false},
		{"chw", []int{1, 5, 7}, 1, 5, 7, false, false},
		{"batch", []int{2, 24, 3, 3}, 24, 0, 0, false, true},
		{"no channel axis", []int{1, 3, 5, 7}, 24, 0, 0, false, true},
		{"rank 2", []int{5, 7}, 1, 0, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := layoutOf(tt.shape, tt.channels)
			if tt.wantError {
				if !errors.Is(err, ErrUnexpectedOutput) {
					t.Errorf("error = %v, want ErrUnexpectedOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l.h != tt.wantH || l.w != tt.wantW || l.channelsLast != tt.wantLast {
				t.Errorf("layout = %+v", l)
			}
		})
	}
}

// buildOutputs creates NCHW buffers where pixel (x, y) is foreground when
// fg[y][x] is true, and its hottest part channel is part[y][x].
func buildOutputs(w, h int, fg [][]bool, part [][]int, channelsLast bool) ([]float32, []int, []float32, []int) {
	segments := make([]float32, w*h)
	heatmaps := make([]float32, w*h*NumParts)
	pl := tensorLayout{h: h, w: w, c: NumParts, channelsLast: channelsLast}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if fg[y][x] {
				segments[y*w+x] = 4 // sigmoid ~0.98
			} else {
				segments[y*w+x] = -4
			}
			for c := 0; c < NumParts; c++ {
				heatmaps[pl.index(y, x, c)] = -1
			}
			heatmaps[pl.index(y, x, part[y][x])] = 2
		}
	}
	partShape := []int{1, NumParts, h, w}
	segShape := []int{1, 1, h, w}
	if channelsLast {
		partShape = []int{1, h, w, NumParts}
		segShape = []int{1, h, w, 1}
	}
	return segments, segShape, heatmaps, partShape
}

func TestDecodeParts(t *testing.T) {
	fg := [][]bool{{true, false, true}, {false, true, true}}
	part := [][]int{{0, 5, 23}, {1, 12, 7}}

	for _, last := range []bool{false, true} {
		segs, segShape, heat, partShape := buildOutputs(3, 2, fg, part, last)
		pm, err := decodeParts(segs, segShape, heat, partShape, 0.7)
		if err != nil {
			t.Fatalf("channelsLast=%v: decodeParts() error = %v", last, err)
		}
		want := [][]Part{{0, PartNone, 23}, {PartNone, 12, 7}}
		for y := range want {
			for x := range want[y] {
				if got := pm.At(x, y); got != want[y][x] {
					t.Errorf("channelsLast=%v: At(%d,%d) = %d, want %d", last, x, y, got, want[y][x])
				}
			}
		}
	}
}

func TestDecodePartsThreshold(t *testing.T) {
	segs := []float32{0.5} // sigmoid ~0.62
	heat := make([]float32, NumParts)
	pm, err := decodeParts(segs, []int{1, 1, 1, 1}, heat, []int{1, NumParts, 1, 1}, 0.7)
	if err != nil {
		t.Fatalf("decodeParts() error = %v", err)
	}
	if pm.At(0, 0) != PartNone {
		t.Error("pixel below threshold should be background")
	}

	pm, err = decodeParts(segs, []int{1, 1, 1, 1}, heat, []int{1, NumParts, 1, 1}, 0.5)
	if err != nil {
		t.Fatalf("decodeParts() error = %v", err)
	}
	if pm.At(0, 0) != 0 {
		t.Errorf("At(0,0) = %d, want 0", pm.At(0, 0))
	}
}

func TestDecodePartsMismatch(t *testing.T) {
	segs := make([]float32, 4)
	heat := make([]float32, 9*NumParts)
	_, err := decodeParts(segs, []int{1, 1, 2, 2}, heat, []int{1, NumParts, 3, 3}, 0.7)
	if !errors.Is(err, ErrUnexpectedOutput) {
		t.Errorf("error = %v, want ErrUnexpectedOutput", err)
	}

	_, err = decodeParts(segs[:1], []int{1, 1, 2, 2}, heat, []int{1, NumParts, 2, 2}, 0.7)
	if !errors.Is(err, ErrUnexpectedOutput) {
		t.Errorf("short buffer error = %v, want ErrUnexpectedOutput", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.SegmentationThreshold != 0.7 {
		t.Errorf("SegmentationThreshold = %v, want 0.7", cfg.SegmentationThreshold)
	}
	if u, err := url.Parse(cfg.ModelURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		t.Errorf("default ModelURL = %q, want a network URL", cfg.ModelURL)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no url", func(c *Config) { c.ModelURL = "" }},
		{"zero width", func(c *Config) { c.InputWidth = 0 }},
		{"threshold 1", func(c *Config) { c.SegmentationThreshold = 1 }},
		{"no outputs", func(c *Config) { c.PartsOutput = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFetchModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(path, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := fetchModel(context.Background(), path, 1024)
	if err != nil || string(data) != "onnx" {
		t.Errorf("fetchModel(path) = %q, %v", data, err)
	}
	data, err = fetchModel(context.Background(), "file://"+path, 1024)
	if err != nil || string(data) != "onnx" {
		t.Errorf("fetchModel(file://) = %q, %v", data, err)
	}
	if _, err := fetchModel(context.Background(), filepath.Join(dir, "missing.onnx"), 1024); err == nil {
		t.Error("expected error for missing file")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	data, err = fetchModel(context.Background(), srv.URL+"/model.onnx", 1024)
	if err != nil || string(data) != "remote" {
		t.Errorf("fetchModel(url) = %q, %v", data, err)
	}
}

func TestBodyPixLoadFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelURL = filepath.Join(t.TempDir(), "missing.onnx")
	bp := NewBodyPix(cfg, nil)

	err := bp.Load(context.Background())
	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() error = %v, want ModelLoadError", err)
	}
	if loadErr.Source != cfg.ModelURL {
		t.Errorf("Source = %q, want %q", loadErr.Source, cfg.ModelURL)
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if _, err := bp.Segment(context.Background(), img); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Segment() error = %v, want ErrNotLoaded", err)
	}
	if _, err := bp.Segment(context.Background(), image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Segment(empty) error = %v, want ErrEmptyImage", err)
	}
	if err := bp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestModelLoadOnce(t *testing.T) {
	mock := NewMock()
	model := NewModel(mock, nil)

	if model.State() != StatePending {
		t.Errorf("State() = %v, want pending", model.State())
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := model.Load(context.Background()); err != nil {
				t.Errorf("Load() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := mock.CallCount("Load"); got != 1 {
		t.Errorf("engine Load called %d times, want 1", got)
	}
	if !model.Ready() {
		t.Error("model should be ready")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	pm, err := model.Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if pm.Width != 4 || pm.Height != 2 || pm.At(0, 0) != 12 || pm.At(3, 0) != PartNone {
		t.Errorf("unexpected part map %+v", pm)
	}
}

func TestModelLoadFailure(t *testing.T) {
	mock := NewMock()
	mock.LoadFunc = func(ctx context.Context) error {
		return errors.New("network unreachable")
	}
	model := NewModel(mock, nil)

	model.LoadAsync(context.Background())
	select {
	case <-model.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}

	if model.State() != StateFailed {
		t.Errorf("State() = %v, want failed", model.State())
	}
	var loadErr *ModelLoadError
	if !errors.As(model.Err(), &loadErr) {
		t.Errorf("Err() = %v, want ModelLoadError", model.Err())
	}

	// Failure is permanent.
	if err := model.Load(context.Background()); err == nil {
		t.Error("second Load() should report the first failure")
	}
	if got := mock.CallCount("Load"); got != 1 {
		t.Errorf("engine Load called %d times, want 1", got)
	}

	_, err := model.Segment(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Segment() error = %v, want ErrModelUnavailable", err)
	}
	if mock.CallCount("Segment") != 0 {
		t.Error("engine Segment should not be called when unavailable")
	}
}

func TestModelLoadContextCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mock := NewMock()
	mock.LoadFunc = func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	model := NewModel(mock, nil)
	model.LoadAsync(context.Background())
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := model.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load(cancelled) error = %v, want context.Canceled", err)
	}

	close(release)
	<-model.Done()
	if !model.Ready() {
		t.Error("background load should still complete")
	}
}

func TestLoadStateString(t *testing.T) {
	tests := map[LoadState]string{
		StatePending:  "pending",
		StateLoading:  "loading",
		StateReady:    "ready",
		StateFailed:   "failed",
		LoadState(99): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("LoadState(%d).String() = %q, want %q", s, got, want)
		}
	}
}
