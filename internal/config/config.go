// Package config loads the worker's environment-variable configuration
// (spec §6). Unlike the teacher's Vault-backed secret manager, there is no
// secret store in scope here — spec.md names plain env vars — but the
// fail-fast, typed-getter shape is carried forward from it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
)

// Config is the immutable, fully-validated configuration for one process run.
type Config struct {
	ManagerURL            string
	UploadURL             string
	UploadKey             string
	ScrapeConcurrency     int
	ScrapeInterDaySleepMs int
	LogLevel              zapcore.Level
	// UploadMode selects which shape the Emitter sends to UploadURL: the
	// raw {htmlId, body} pair, or the fully decoded TimetableEntry. Not a
	// spec.md literal env var — see SPEC_FULL.md "Supplemented features".
	UploadMode string
}

// Load reads and validates the process environment. MANAGER_URL is the
// only hard requirement; everything else has a spec-mandated default.
func Load() (*Config, error) {
	managerURL := os.Getenv("MANAGER_URL")
	if managerURL == "" {
		return nil, fmt.Errorf("config: MANAGER_URL is required")
	}

	concurrency, err := intEnv("SCRAPE_CONCURRENCY", 1)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("config: SCRAPE_CONCURRENCY must be >= 1, got %d", concurrency)
	}

	sleepMs, err := intEnv("SCRAPE_INTER_DAY_SLEEP_MS", 0)
	if err != nil {
		return nil, err
	}
	if sleepMs < 0 {
		return nil, fmt.Errorf("config: SCRAPE_INTER_DAY_SLEEP_MS must be >= 0, got %d", sleepMs)
	}

	level, err := levelEnv("LOG_LEVEL", zapcore.InfoLevel)
	if err != nil {
		return nil, err
	}

	uploadMode := os.Getenv("UPLOAD_MODE")
	if uploadMode == "" {
		uploadMode = "raw"
	}
	if uploadMode != "raw" && uploadMode != "decoded" {
		return nil, fmt.Errorf("config: UPLOAD_MODE must be %q or %q, got %q", "raw", "decoded", uploadMode)
	}

	return &Config{
		ManagerURL:            managerURL,
		UploadURL:             os.Getenv("UPLOAD_URL"),
		UploadKey:             os.Getenv("UPLOAD_KEY"),
		ScrapeConcurrency:     concurrency,
		ScrapeInterDaySleepMs: sleepMs,
		LogLevel:              level,
		UploadMode:            uploadMode,
	}, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func levelEnv(name string, def zapcore.Level) (zapcore.Level, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return def, fmt.Errorf("config: %s must be one of debug|info|warn|error|dpanic|panic|fatal, got %q", name, raw)
	}
	return lvl, nil
}
