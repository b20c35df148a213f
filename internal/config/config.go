// Package config loads and saves the poseview settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ausocean/utils/logging"

	"github.com/ayusman/poseview/internal/capture"
	"github.com/ayusman/poseview/internal/plugin"
	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/render"
	"github.com/ayusman/poseview/internal/sensor"
)

// Dir is the settings directory name under the user's home.
const Dir = ".poseview"

// Log defaults.
const (
	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = 50 // MB
	DefaultLogMaxBackups = 5
	DefaultLogMaxAge     = 28 // days
)

// Pipeline timing defaults.
const (
	DefaultIdleFPS       = 5
	DefaultIdleTimeoutMs = 2000
)

// Config holds all persisted settings.
type Config struct {
	Sensor SensorConfig `json:"sensor"`
	Render RenderConfig `json:"render"`
	Pose   PoseConfig   `json:"pose"`
	Paths  PathsConfig  `json:"paths"`
	Log    LogConfig    `json:"log"`
}

// SensorConfig configures the tracker bridge and the optional color camera.
type SensorConfig struct {
	Bridge        []string       `json:"bridge"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	FPS           int            `json:"fps"`
	IdleFPS       int            `json:"idle_fps"`
	IdleTimeoutMs int            `json:"idle_timeout_ms"`
	UseCamera     bool           `json:"use_camera"`
	Camera        capture.Config `json:"camera"`
}

// RenderConfig configures the debug views.
type RenderConfig struct {
	MaxDepth      uint16  `json:"max_depth"`
	MinConfidence float64 `json:"min_confidence"`
}

// PoseConfig configures classification and debouncing.
type PoseConfig struct {
	ConfirmFrames   int             `json:"confirm_frames"`
	Thresholds      pose.Thresholds `json:"thresholds"`
	PluginTimeoutMs int             `json:"plugin_timeout_ms"`
}

// PathsConfig locates the files poseview reads and writes.
// Relative paths are resolved against the settings directory.
type PathsConfig struct {
	Database   string `json:"database"`
	Images     string `json:"images"`
	Plugins    string `json:"plugins"`
	Recordings string `json:"recordings"`
}

// LogConfig configures the logger and its rotating file.
type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Suppress   bool   `json:"suppress"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	sc := sensor.DefaultConfig()
	return &Config{
		Sensor: SensorConfig{
			Width:         sc.Width,
			Height:        sc.Height,
			FPS:           sc.FPS,
			IdleFPS:       DefaultIdleFPS,
			IdleTimeoutMs: DefaultIdleTimeoutMs,
			Camera:        capture.DefaultConfig(),
		},
		Render: RenderConfig{
			MaxDepth:      render.DefaultMaxDepth,
			MinConfidence: render.DefaultMinConfidence,
		},
		Pose: PoseConfig{
			ConfirmFrames:   pose.DefaultConfirmFrames,
			Thresholds:      pose.DefaultThresholds(),
			PluginTimeoutMs: plugin.DefaultTimeoutMs,
		},
		Paths: PathsConfig{
			Database:   "poseview.db",
			Images:     "images",
			Plugins:    "plugins",
			Recordings: "recordings",
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			File:       "poseview.log",
			MaxSize:    DefaultLogMaxSize,
			MaxBackups: DefaultLogMaxBackups,
			MaxAge:     DefaultLogMaxAge,
		},
	}
}

// DefaultPath returns ~/.poseview/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, Dir, "config.json"), nil
}

// Validate replaces out-of-range values with their defaults.
func (c *Config) Validate() error {
	d := DefaultConfig()

	if c.Sensor.Width <= 0 || c.Sensor.Height <= 0 {
		c.Sensor.Width, c.Sensor.Height = d.Sensor.Width, d.Sensor.Height
	}
	if c.Sensor.FPS <= 0 {
		c.Sensor.FPS = d.Sensor.FPS
	}
	if c.Sensor.IdleFPS <= 0 || c.Sensor.IdleFPS > c.Sensor.FPS {
		c.Sensor.IdleFPS = min(d.Sensor.IdleFPS, c.Sensor.FPS)
	}
	if c.Sensor.IdleTimeoutMs < 0 {
		c.Sensor.IdleTimeoutMs = d.Sensor.IdleTimeoutMs
	}
	if _, err := capture.ParseAPI(c.Sensor.Camera.API); err != nil {
		c.Sensor.Camera.API = d.Sensor.Camera.API
	}
	if c.Sensor.Camera.Width <= 0 || c.Sensor.Camera.Height <= 0 {
		c.Sensor.Camera.Width, c.Sensor.Camera.Height = d.Sensor.Camera.Width, d.Sensor.Camera.Height
	}
	if c.Sensor.Camera.FPS <= 0 {
		c.Sensor.Camera.FPS = d.Sensor.Camera.FPS
	}

	if c.Render.MaxDepth == 0 {
		c.Render.MaxDepth = d.Render.MaxDepth
	}
	if c.Render.MinConfidence < 0 || c.Render.MinConfidence > 1 {
		c.Render.MinConfidence = d.Render.MinConfidence
	}

	if c.Pose.ConfirmFrames < 1 {
		c.Pose.ConfirmFrames = d.Pose.ConfirmFrames
	}
	if c.Pose.PluginTimeoutMs <= 0 {
		c.Pose.PluginTimeoutMs = d.Pose.PluginTimeoutMs
	}
	validateThresholds(&c.Pose.Thresholds, d.Pose.Thresholds)

	if c.Paths.Database == "" {
		c.Paths.Database = d.Paths.Database
	}
	if c.Paths.Images == "" {
		c.Paths.Images = d.Paths.Images
	}
	if c.Paths.Plugins == "" {
		c.Paths.Plugins = d.Paths.Plugins
	}
	if c.Paths.Recordings == "" {
		c.Paths.Recordings = d.Paths.Recordings
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = d.Log.MaxSize
	}
	if c.Log.MaxBackups < 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.Log.MaxAge < 0 {
		c.Log.MaxAge = d.Log.MaxAge
	}

	return nil
}

func validateThresholds(t *pose.Thresholds, d pose.Thresholds) {
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		t.MinConfidence = d.MinConfidence
	}
	for _, f := range []struct{ v, d *float64 }{
		{&t.HeadMargin, &d.HeadMargin},
		{&t.ShoulderBand, &d.ShoulderBand},
		{&t.HipBand, &d.HipBand},
		{&t.HipReach, &d.HipReach},
		{&t.FaceReach, &d.FaceReach},
	} {
		if *f.v <= 0 {
			*f.v = *f.d
		}
	}
	for _, f := range []struct{ v, d *float64 }{
		{&t.StraightTolerance, &d.StraightTolerance},
		{&t.CollinearTolerance, &d.CollinearTolerance},
		{&t.HorizontalMax, &d.HorizontalMax},
	} {
		if *f.v <= 0 || *f.v > 90 {
			*f.v = *f.d
		}
	}
	if t.DiagonalMin < 0 || t.DiagonalMax > 90 || t.DiagonalMin >= t.DiagonalMax {
		t.DiagonalMin, t.DiagonalMax = d.DiagonalMin, d.DiagonalMax
	}
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save validates the config and writes it to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// Resolve returns a copy of p with relative paths joined onto base.
func (p PathsConfig) Resolve(base string) PathsConfig {
	abs := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(base, s)
	}
	return PathsConfig{
		Database:   abs(p.Database),
		Images:     abs(p.Images),
		Plugins:    abs(p.Plugins),
		Recordings: abs(p.Recordings),
	}
}

// TrackerConfig returns the bridge tracker settings.
func (s SensorConfig) TrackerConfig() sensor.Config {
	return sensor.Config{
		Command: s.Bridge,
		Width:   s.Width,
		Height:  s.Height,
		FPS:     s.FPS,
	}
}

// ParseLevel maps a level name to its logging level.
func ParseLevel(s string) (int8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logging.Debug, nil
	case "info", "":
		return logging.Info, nil
	case "warning", "warn":
		return logging.Warning, nil
	case "error":
		return logging.Error, nil
	case "fatal":
		return logging.Fatal, nil
	default:
		return logging.Info, fmt.Errorf("unknown log level %q", s)
	}
}
