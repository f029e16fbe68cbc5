// Package config loads wlambilight settings from YAML, then the
// environment. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"wlambilight.app/ambilight/internal/dmabuf"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultBaud = 230400
	DefaultRate = 30 * physic.Hertz
)

// Config is the full set of settings.
type Config struct {
	Output        string        `yaml:"output"`
	Device        string        `yaml:"device"`
	Baud          int           `yaml:"baud"`
	Rate          Frequency     `yaml:"rate"`
	RenderNode    string        `yaml:"render_node"`
	FrameTimeout  time.Duration `yaml:"frame_timeout"`
	Retries       int           `yaml:"retries"`
	OverlayCursor bool          `yaml:"overlay_cursor"`
	BlankWhenIdle bool          `yaml:"blank_when_idle"`
	LogLevel      string        `yaml:"log_level"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Baud:       DefaultBaud,
		Rate:       Frequency{DefaultRate},
		RenderNode: dmabuf.DefaultRenderNode,
		LogLevel:   zerolog.InfoLevel.String(),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/wlambilight/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "wlambilight", "config.yaml")
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadOptional is Load, but a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	c, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Save writes c to path.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Validate checks c is runnable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, fmt.Errorf("%w: output is required", ErrInvalid))
	}
	if strings.TrimSpace(c.Device) == "" {
		errs = append(errs, fmt.Errorf("%w: device is required", ErrInvalid))
	}
	if c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("%w: baud must be positive, got %d", ErrInvalid, c.Baud))
	}
	if c.Rate.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("%w: rate must be positive, got %s", ErrInvalid, c.Rate))
	} else if c.Rate.Period() <= 0 {
		errs = append(errs, fmt.Errorf("%w: rate %s is too high", ErrInvalid, c.Rate))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("%w: retries must be >= 0, got %d", ErrInvalid, c.Retries))
	}
	if c.FrameTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: frame_timeout must be >= 0, got %s", ErrInvalid, c.FrameTimeout))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: log_level: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// Level is the parsed log level, info when unset.
func (c *Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// BaudFrequency is the baud rate as a periph frequency.
func (c *Config) BaudFrequency() physic.Frequency {
	return physic.Frequency(c.Baud) * physic.Hertz
}
