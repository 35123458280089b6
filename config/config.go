// Package config loads, validates and saves the motionwatch YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds accepted in camera.source.
const (
	SourceDevice    = "device"
	SourceStream    = "stream"
	SourceFile      = "file"
	SourceSnapshot  = "snapshot"
	SourceDirectory = "directory"
)

// Config represents the complete motionwatch configuration.
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Motion  motion.Config `yaml:"motion"`
	Output  OutputConfig  `yaml:"output"`
	Display DisplayConfig `yaml:"display"`
	Logging LoggingConfig `yaml:"logging"`
}

// CameraConfig contains frame source settings.
type CameraConfig struct {
	Source string `yaml:"source"` // device, stream, file, snapshot, directory
	Index  int    `yaml:"index"`  // device index for source=device
	URL    string `yaml:"url"`    // stream/snapshot URL, or file/directory path
	// Resolution is a preset alias such as "vga" or "720p". When set it
	// overrides Width and Height.
	Resolution string `yaml:"resolution"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	// ReconnectDelay is the first retry delay after a stream failure; it
	// doubles up to MaxReconnectDelay.
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	// RequestTimeout bounds a single snapshot HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	QueueSize      int           `yaml:"queue_size"`
}

// OutputConfig contains detection output settings.
type OutputConfig struct {
	SaveFrames    bool          `yaml:"save_frames"`
	FramesDir     string        `yaml:"frames_dir"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
	EventLog      string        `yaml:"event_log"` // empty disables
	Database      string        `yaml:"database"`  // sqlite path, empty disables
}

// DisplayConfig contains preview window settings.
type DisplayConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ShowThreshold bool    `yaml:"show_threshold"`
	WindowScale   float64 `yaml:"window_scale"`
}

// LoggingConfig contains application log settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // console, json
	File       string `yaml:"file"`   // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			Source:            SourceDevice,
			Index:             0,
			Width:             640,
			Height:            480,
			FPS:               30,
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
			RequestTimeout:    5 * time.Second,
			QueueSize:         4,
		},
		Motion: motion.DefaultConfig(),
		Output: OutputConfig{
			SaveFrames:    true,
			FramesDir:     "motion_frames",
			JPEGQuality:   90,
			AlertCooldown: 2 * time.Second,
			EventLog:      "motion_log.jsonl",
		},
		Display: DisplayConfig{
			Enabled:     true,
			WindowScale: 1.0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads a YAML configuration file on top of Default and validates it.
//
// Keys missing from the file keep their default values.
//
// Arguments:
//   - path: The YAML file to read.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: A read, parse or validation error.
//
// @example
// cfg, err := config.Load("motionwatch.yaml")
//
//	if err != nil {
//	    return err
//	}
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML, replacing path atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".motionwatch-*.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write config")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to replace config")
}

// FrameSize returns the capture size: the resolution preset when one is set,
// otherwise Width x Height.
func (c CameraConfig) FrameSize() (width, height int) {
	if res, ok := images.Lookup(c.Resolution); ok {
		return res.Pixels.Width, res.Pixels.Height
	}
	return c.Width, c.Height
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	// Motion errors wrap motion.ErrInvalidConfig.
	if err := c.Motion.Validate(); err != nil {
		return errors.Wrap(err, "motion")
	}

	switch c.Camera.Source {
	case SourceDevice:
		if c.Camera.Index < 0 {
			return errors.Wrapf(ErrInvalid, "camera.index %d is negative", c.Camera.Index)
		}
	case SourceStream, SourceFile, SourceSnapshot, SourceDirectory:
		if c.Camera.URL == "" {
			return errors.Wrapf(ErrInvalid, "camera.url is required for source %q", c.Camera.Source)
		}
	default:
		return errors.Wrapf(ErrInvalid, "camera.source %q is not one of device, stream, file, snapshot, directory", c.Camera.Source)
	}

	if c.Camera.Resolution != "" {
		if _, ok := images.Lookup(c.Camera.Resolution); !ok {
			return errors.Wrapf(ErrInvalid, "camera.resolution %q is not one of %s",
				c.Camera.Resolution, strings.Join(images.Aliases(), ", "))
		}
	}

	switch {
	case c.Camera.Width < 0 || c.Camera.Height < 0:
		return errors.Wrap(ErrInvalid, "camera width and height must not be negative")
	case c.Camera.FPS < 0:
		return errors.Wrapf(ErrInvalid, "camera.fps %d is negative", c.Camera.FPS)
	case c.Camera.ReconnectDelay <= 0 || c.Camera.MaxReconnectDelay < c.Camera.ReconnectDelay:
		return errors.Wrap(ErrInvalid, "camera reconnect delays must satisfy 0 < reconnect_delay <= max_reconnect_delay")
	case c.Camera.QueueSize < 1:
		return errors.Wrapf(ErrInvalid, "camera.queue_size %d must be at least 1", c.Camera.QueueSize)
	case c.Output.SaveFrames && c.Output.FramesDir == "":
		return errors.Wrap(ErrInvalid, "output.frames_dir is required when save_frames is on")
	case c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100:
		return errors.Wrapf(ErrInvalid, "output.jpeg_quality %d outside [1, 100]", c.Output.JPEGQuality)
	case c.Output.AlertCooldown < 0:
		return errors.Wrap(ErrInvalid, "output.alert_cooldown must not be negative")
	case c.Display.WindowScale <= 0:
		return errors.Wrapf(ErrInvalid, "display.window_scale %v must be positive", c.Display.WindowScale)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.Wrapf(ErrInvalid, "logging.format %q is not console or json", c.Logging.Format)
	}

	return nil
}
