// Package config provides environment helpers for go-intake commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables understood by the kiosk.
const (
	EnvConfigPath  = "INTAKE_CONFIG"
	EnvListen      = "INTAKE_LISTEN"
	EnvModelURL    = "INTAKE_MODEL_URL"
	EnvSubmitURL   = "INTAKE_SUBMIT_URL"
	EnvSettleDelay = "INTAKE_SETTLE_DELAY"
	EnvLogLevel    = "LOG_LEVEL"
)

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Duration returns key parsed as a time.Duration.
// Plain integers are read as milliseconds. Falls back to def on any error.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// Int returns key parsed as an int, or def.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ConfigPath returns the config file path from INTAKE_CONFIG, or def.
func ConfigPath(def string) string {
	return String(EnvConfigPath, def)
}
