// Package kiosk wires the intake kiosk together: camera, segmentation model,
// capture controller, intake form and the web control surface.
package kiosk

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-intake/internal/config"
	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/capture"
	"github.com/teslashibe/go-intake/pkg/intake"
	"github.com/teslashibe/go-intake/pkg/overlay"
	"github.com/teslashibe/go-intake/pkg/segmentation"
)

// DefaultListen is the control surface address.
const DefaultListen = ":8080"

// Config holds all configuration for the kiosk.
// Flag parsing is done in cmd/intake/main.go; this struct is data only.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Camera  camera.Config   `yaml:"camera"`
	Model   ModelConfig     `yaml:"model"`
	Overlay overlay.Options `yaml:"overlay"`
	Capture CaptureConfig   `yaml:"capture"`
	Submit  SubmitConfig    `yaml:"submit"`
}

// ModelConfig selects and tunes the segmentation model.
type ModelConfig struct {
	Enabled             bool `yaml:"enabled"`
	segmentation.Config `yaml:",inline"`
}

// CaptureConfig tunes capture sessions.
type CaptureConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// SubmitConfig points at the intake backend.
type SubmitConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfig returns sensible defaults for the kiosk.
func DefaultConfig() Config {
	return Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		Camera:   camera.DefaultConfig(),
		Model: ModelConfig{
			Enabled: true,
			Config:  segmentation.DefaultConfig(),
		},
		Overlay: overlay.DefaultOptions(),
		Capture: CaptureConfig{SettleDelay: capture.DefaultSettleDelay},
		Submit:  SubmitConfig{URL: intake.DefaultSubmitURL},
	}
}

// LoadFile reads a YAML config on top of the defaults.
// Keys absent from the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
// Call this after loading the file and before flag overrides.
func (c *Config) ApplyEnv() {
	c.Listen = config.String(config.EnvListen, c.Listen)
	c.LogLevel = config.String(config.EnvLogLevel, c.LogLevel)
	c.Model.ModelURL = config.String(config.EnvModelURL, c.Model.ModelURL)
	c.Submit.URL = config.String(config.EnvSubmitURL, c.Submit.URL)
	c.Capture.SettleDelay = config.Duration(config.EnvSettleDelay, c.Capture.SettleDelay)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return &ConfigError{Field: "listen", Message: "listen address is required"}
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "camera", Message: strings.Join(errs, "; ")}
	}
	if c.Model.Enabled {
		if err := c.Model.Config.Validate(); err != nil {
			return &ConfigError{Field: "model", Message: err.Error(), Err: err}
		}
	}
	if err := c.Overlay.Validate(); err != nil {
		return &ConfigError{Field: "overlay", Message: err.Error(), Err: err}
	}
	if c.Capture.SettleDelay < 0 {
		return &ConfigError{Field: "capture.settle_delay", Message: "settle delay must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a validation failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
