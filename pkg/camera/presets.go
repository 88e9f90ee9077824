package camera

import "sort"

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetVGA     = "vga"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetLowFPS  = "lowfps"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetVGA:     DefaultConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   HD1080Config(),
		PresetLowFPS:  LowFPSConfig(),
	}
}

// PresetNames returns the sorted list of available preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Segmentation is slower at this size; the overlay arrives later.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// LowFPSConfig trades framerate for exposure time in dim exam rooms.
func LowFPSConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 10
	cfg.PreviewFPS = 5
	return cfg
}
