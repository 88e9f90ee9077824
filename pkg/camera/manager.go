package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Manager holds the current camera configuration. Devices read it on every
// Acquire, so a change applies to the next capture session.
type Manager struct {
	mu       sync.RWMutex
	config   Config
	onChange []func(old, cur Config)
}

// NewManager creates a manager with cfg, or defaults when cfg is zero.
func NewManager(cfg Config) *Manager {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers fn to run after every accepted change.
func (m *Manager) OnChange(fn func(old, cur Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// SetConfig validates and replaces the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return &ConfigError{Problems: errs}
	}

	m.mu.Lock()
	old := m.config
	m.config = cfg
	hooks := append([]func(old, cur Config){}, m.onChange...)
	m.mu.Unlock()

	if old != cfg {
		for _, fn := range hooks {
			fn(old, cfg)
		}
	}
	return nil
}

// Update is a partial change to the camera configuration. Nil fields keep
// their current value; Preset, when set, is applied before the others.
// The backend cannot be changed at runtime.
type Update struct {
	Preset     *string `json:"preset,omitempty"`
	Device     *string `json:"device,omitempty"`
	Width      *int    `json:"width,omitempty"`
	Height     *int    `json:"height,omitempty"`
	Framerate  *int    `json:"framerate,omitempty"`
	Quality    *int    `json:"quality,omitempty"`
	PreviewFPS *int    `json:"preview_fps,omitempty"`
}

// ParseUpdate decodes a JSON update, rejecting unknown settings.
func ParseUpdate(data []byte) (Update, error) {
	var u Update
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		return Update{}, fmt.Errorf("camera: invalid update: %w", err)
	}
	return u, nil
}

// Apply merges u into the current configuration and stores the result.
// Nothing changes when the merged configuration is invalid.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()

	if u.Preset != nil {
		preset := GetPreset(*u.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("%w: %s", ErrUnknownPreset, *u.Preset)
		}
		// Presets describe capture modes, not which camera is attached.
		backend, device := cfg.Backend, cfg.Device
		cfg = *preset
		cfg.Backend, cfg.Device = backend, device
	}

	setString(&cfg.Device, u.Device)
	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	setInt(&cfg.Quality, u.Quality)
	setInt(&cfg.PreviewFPS, u.PreviewFPS)

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ErrUnknownPreset is returned by Apply for a preset name not in Presets.
var ErrUnknownPreset = errors.New("camera: unknown preset")

// ConfigError lists every validation problem of a rejected configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "camera: invalid config: " + strings.Join(e.Problems, "; ")
}
