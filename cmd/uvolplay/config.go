package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration so YAML values like "4s" parse naturally.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

// fileConfig is the optional YAML options file for the headless player.
// Every field falls back to a sensible default when absent.
type fileConfig struct {
	BufferDuration   duration `yaml:"buffer_duration"`
	IntervalDuration duration `yaml:"interval_duration"`
	PresentationHz   int      `yaml:"presentation_hz"`
	EnableHTTP3      bool     `yaml:"http3"`
	FetchTimeout     duration `yaml:"fetch_timeout"`
	TextureFormats   []string `yaml:"texture_formats"`
	AudioFormats     []string `yaml:"audio_formats"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		PresentationHz: 30,
		FetchTimeout:   duration(30 * time.Second),
	}
}

// loadConfig reads the YAML options file at path. An empty path returns the
// defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.PresentationHz <= 0 {
		cfg.PresentationHz = 30
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
