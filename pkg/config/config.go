// Package config loads the engine configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Bounds shared by the clamped integer settings.
const (
	clampMin = 1
	clampMax = 256
)

const (
	DefaultMaxThreads    = 16
	DefaultSleepTimeMs   = 10
	DefaultMaxFileSizeKB = 20
)

// Config is the engine configuration, loaded once at startup. The key names
// match the on-disk JSON document verbatim.
type Config struct {
	QueueFolder     string   `koanf:"queue folder"`
	WorkflowsFolder string   `koanf:"workflows folder"`
	MaxThreads      int      `koanf:"max threads"`
	SleepTimeMs     int      `koanf:"engine sleep time in run loop in ms"`
	MaxFileSizeKB   int      `koanf:"max file size in kB"`
	Verbose         bool     `koanf:"verbose"`
	APIInterfaces   []string `koanf:"API interfaces"`
	APIIndex        int      `koanf:"API index"`
}

// Load reads and checks the configuration. Missing required fields abort
// startup; out-of-range optional fields are clamped with a warning.
func Load(path string, logger *slog.Logger) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	cfg := &Config{
		MaxThreads:    DefaultMaxThreads,
		SleepTimeMs:   DefaultSleepTimeMs,
		MaxFileSizeKB: DefaultMaxFileSizeKB,
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.check(logger); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) check(logger *slog.Logger) error {
	if c.QueueFolder == "" {
		return fmt.Errorf("config error: 'queue folder' is required")
	}

	if c.WorkflowsFolder == "" {
		return fmt.Errorf("config error: 'workflows folder' is required")
	}

	if info, err := os.Stat(c.QueueFolder); err != nil || !info.IsDir() {
		return fmt.Errorf("config error: queue folder is not a directory %q", c.QueueFolder)
	}

	if info, err := os.Stat(c.WorkflowsFolder); err != nil || !info.IsDir() {
		return fmt.Errorf("config error: workflows folder is not a directory %q", c.WorkflowsFolder)
	}

	if c.APIIndex < 0 || (len(c.APIInterfaces) > 0 && c.APIIndex >= len(c.APIInterfaces)) {
		return fmt.Errorf("config error: API index %d out of range", c.APIIndex)
	}

	c.MaxThreads = clamp(c.MaxThreads, "max threads", logger)
	c.SleepTimeMs = clamp(c.SleepTimeMs, "engine sleep time in run loop in ms", logger)
	c.MaxFileSizeKB = clamp(c.MaxFileSizeKB, "max file size in kB", logger)

	return nil
}

func clamp(value int, name string, logger *slog.Logger) int {
	if value < clampMin {
		logger.Warn("Config value below range, clamping", "key", name, "value", value, "min", clampMin)
		return clampMin
	}

	if value > clampMax {
		logger.Warn("Config value above range, clamping", "key", name, "value", value, "max", clampMax)
		return clampMax
	}

	return value
}
