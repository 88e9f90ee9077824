// Intake kiosk - patient photo capture with body-part overlay confirmation
// Serves the control surface and drives the camera, model and intake form
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-intake/internal/config"
	"github.com/teslashibe/go-intake/internal/log"
	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/kiosk"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)
	logger := log.Component("kiosk")

	app, err := kiosk.New(cfg, logger)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// loadConfig layers the config file, environment and flags, in that order.
func loadConfig() (kiosk.Config, error) {
	configPath := flag.String("config", "", "YAML config file (overrides INTAKE_CONFIG env var)")
	listen := flag.String("listen", "", "Control surface address (e.g. :8080)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	modelURL := flag.String("model-url", "", "BodyPix ONNX model URL or path")
	noModel := flag.Bool("no-model", false, "Disable body segmentation (no overlays)")
	submitURL := flag.String("submit-url", "", "Intake backend endpoint")
	settleDelay := flag.Duration("settle-delay", 0, "Delay between camera start and capture")
	cameraBackend := flag.String("camera", "", "Camera backend: auto, mediadevices, mock")
	flag.Parse()

	cfg := kiosk.DefaultConfig()
	path := config.ConfigPath("")
	if *configPath != "" {
		path = *configPath
	}
	if path != "" {
		loaded, err := kiosk.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *modelURL != "" {
		cfg.Model.ModelURL = *modelURL
	}
	if *noModel {
		cfg.Model.Enabled = false
	}
	if *submitURL != "" {
		cfg.Submit.URL = *submitURL
	}
	if *settleDelay > 0 {
		cfg.Capture.SettleDelay = *settleDelay
	}
	if *cameraBackend != "" {
		cfg.Camera.Backend = camera.Backend(*cameraBackend)
	}
	return cfg, nil
}
