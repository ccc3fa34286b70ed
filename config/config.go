// Package config loads the runtime settings of the flowscope tools from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NetPo4ki/go-flowscope/dispatch"
)

type (
	Config struct {
		Dispatchers Dispatchers `yaml:"dispatchers"`
		Log         Log         `yaml:"log"`
		Tracing     Tracing     `yaml:"tracing"`
		Metrics     Metrics     `yaml:"metrics"`
	}

	// Dispatchers sizes the pools. Zero keeps the process default.
	Dispatchers struct {
		Compute int `yaml:"compute,omitempty"`
		IO      int `yaml:"io,omitempty"`
	}

	Log struct {
		Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
		Format string `yaml:"format,omitempty"` // text, json
	}

	Tracing struct {
		Enabled     bool   `yaml:"enabled,omitempty"`
		ServiceName string `yaml:"serviceName,omitempty"`
		Output      string `yaml:"output,omitempty"` // file path, stdout when empty
	}

	Metrics struct {
		Namespace string `yaml:"namespace,omitempty"`
		Dump      bool   `yaml:"dump,omitempty"`
	}
)

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Log:     Log{Level: "info", Format: "text"},
		Tracing: Tracing{ServiceName: "flowscope"},
		Metrics: Metrics{Namespace: "flowscope"},
	}
}

// Load reads the file at path over the defaults. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Dispatchers.Compute < 0 {
		errs = append(errs, fmt.Errorf("dispatchers.compute must not be negative, got %d", c.Dispatchers.Compute))
	}
	if c.Dispatchers.IO < 0 {
		errs = append(errs, fmt.Errorf("dispatchers.io must not be negative, got %d", c.Dispatchers.IO))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Handler builds the slog handler described by l, writing to w.
func (l Log) Handler(w io.Writer) slog.Handler {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Build creates the compute and IO dispatchers. A zero size returns the
// process default, which must not be closed.
func (d Dispatchers) Build() (compute, blocking *dispatch.Dispatcher) {
	compute, blocking = dispatch.Default(), dispatch.IODispatcher()
	if d.Compute > 0 {
		compute = dispatch.NewPool("compute", dispatch.Compute, d.Compute)
	}
	if d.IO > 0 {
		blocking = dispatch.NewPool("io", dispatch.IO, d.IO)
	}
	return compute, blocking
}
