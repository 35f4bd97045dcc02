// Package config loads the postura configuration from a YAML file, a .env
// file and POSTURA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/swdee/go-postura/backend"
	"github.com/swdee/go-postura/capture"
	"github.com/swdee/go-postura/internal/logger"
	"github.com/swdee/go-postura/pipeline"
	"github.com/swdee/go-postura/posture"
	"github.com/swdee/go-postura/render"
	"github.com/swdee/go-postura/server"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "POSTURA_"

// Config is the complete postura configuration
type Config struct {
	Model       ModelConfig                `yaml:"model"`
	Camera      capture.Config             `yaml:"camera"`
	Thresholds  posture.Thresholds         `yaml:"thresholds"`
	Render      RenderConfig               `yaml:"render"`
	Diagnostics pipeline.DiagnosticsConfig `yaml:"diagnostics"`
	Server      server.Config              `yaml:"server"`
	Log         logger.Config              `yaml:"log"`
}

// ModelConfig selects the pose model and the backend it runs on
type ModelConfig struct {
	Path    string `yaml:"path" validate:"required"`
	Backend string `yaml:"backend" validate:"oneof=rknn tflite"`
	// Threads is the number of CPU threads used by TFLite
	Threads int `yaml:"threads" validate:"min=1"`
	// Core is the NPU core the RKNN model runs on
	Core string `yaml:"core" validate:"oneof=auto 0 1 2 skip"`
	// Platform is the Rockchip SoC, when set the process is pinned to the
	// CPU cores selected by Cores
	Platform string `yaml:"platform" validate:"omitempty,oneof=rk3562 rk3566 rk3568 rk3576 rk3582 rk3588"`
	Cores    string `yaml:"cores" validate:"oneof=fast slow all"`
}

// Options returns the backend options for the model
func (m ModelConfig) Options() backend.Options {
	return backend.Options{
		ModelPath: m.Path,
		Kind:      backend.Kind(m.Backend),
		Threads:   m.Threads,
		Core:      m.Core,
	}
}

// RenderConfig sets the overlay drawn on the MJPEG stream
type RenderConfig struct {
	Style  render.Style       `yaml:"style"`
	Panels render.PanelConfig `yaml:"panels"`
	// Font is a TrueType font file, empty uses the built in bitmap font
	Font     string  `yaml:"font"`
	FontSize float64 `yaml:"font_size" validate:"gt=0"`
}

// Default returns the configuration every file and override is applied on top
// of
func Default() Config {
	return Config{
		Model: ModelConfig{
			Path:    "movenet_thunder.rknn",
			Backend: string(backend.RKNN),
			Threads: 4,
			Core:    "auto",
			Cores:   "fast",
		},
		Camera: capture.Config{
			Device: "0",
			Width:  640,
			Height: 480,
		},
		Thresholds: posture.DefaultThresholds(),
		Render: RenderConfig{
			Style:    render.DefaultStyle(),
			Panels:   render.DefaultPanelConfig(),
			FontSize: 16,
		},
		Diagnostics: pipeline.DefaultDiagnostics(),
		Server: server.Config{
			Addr:        "localhost:8080",
			JPEGQuality: 80,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads the .env file when present, then the YAML file at path when
// given, then the environment overrides, and validates the result
func Load(path string) (*Config, error) {

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every field against its validate tag
func (c *Config) Validate() error {

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// lookupFunc returns the value of an environment variable
type lookupFunc func(key string) (string, bool)

// applyEnv overrides the fields most often changed per device
func (c *Config) applyEnv(lookup lookupFunc) error {

	strs := map[string]*string{
		"MODEL":         &c.Model.Path,
		"BACKEND":       &c.Model.Backend,
		"NPU_CORE":      &c.Model.Core,
		"PLATFORM":      &c.Model.Platform,
		"CPU_CORES":     &c.Model.Cores,
		"CAMERA_DEVICE": &c.Camera.Device,
		"ADDR":          &c.Server.Addr,
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FILE":      &c.Log.File,
		"FONT":          &c.Render.Font,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"THREADS":         &c.Model.Threads,
		"CAMERA_ROTATION": &c.Camera.Rotation,
		"CAMERA_WIDTH":    &c.Camera.Width,
		"CAMERA_HEIGHT":   &c.Camera.Height,
	}

	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)

		if !ok {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))

		if err != nil {
			return fmt.Errorf("invalid %s%s value %q: %w", EnvPrefix, key, v, err)
		}

		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))

		if err != nil {
			return fmt.Errorf("invalid %sDEBUG value %q: %w", EnvPrefix, v, err)
		}

		c.Server.Debug = b
	}

	return nil
}
