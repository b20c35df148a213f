package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig_Valid(t *testing.T) {
	want := DefaultConfig()
	got := DefaultConfig()
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Validate() changed the defaults (-want +got):\n%s", diff)
	}
}

func TestValidate_Empty(t *testing.T) {
	// Zero values that are valid settings are kept.
	want := DefaultConfig()
	want.Sensor.IdleTimeoutMs = 0
	want.Sensor.Camera.API = ""
	want.Log.Level = ""
	want.Log.File = ""
	want.Log.MaxBackups = 0
	want.Log.MaxAge = 0

	got := &Config{}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Validate() (-want +got):\n%s", diff)
	}
}

func TestValidate_Clamps(t *testing.T) {
	d := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(c *Config)
		check  func(c *Config) bool
	}{
		{
			name:   "idle fps above active fps",
			mutate: func(c *Config) { c.Sensor.FPS = 3; c.Sensor.IdleFPS = 10 },
			check:  func(c *Config) bool { return c.Sensor.IdleFPS == 3 },
		},
		{
			name:   "unknown camera api",
			mutate: func(c *Config) { c.Sensor.Camera.API = "v4l9" },
			check:  func(c *Config) bool { return c.Sensor.Camera.API == d.Sensor.Camera.API },
		},
		{
			name:   "confidence above one",
			mutate: func(c *Config) { c.Render.MinConfidence = 1.5 },
			check:  func(c *Config) bool { return c.Render.MinConfidence == d.Render.MinConfidence },
		},
		{
			name:   "confirm frames below one",
			mutate: func(c *Config) { c.Pose.ConfirmFrames = 0 },
			check:  func(c *Config) bool { return c.Pose.ConfirmFrames == d.Pose.ConfirmFrames },
		},
		{
			name:   "inverted diagonal band",
			mutate: func(c *Config) { c.Pose.Thresholds.DiagonalMin = 60; c.Pose.Thresholds.DiagonalMax = 30 },
			check: func(c *Config) bool {
				return c.Pose.Thresholds.DiagonalMin == 20 && c.Pose.Thresholds.DiagonalMax == 70
			},
		},
		{
			name:   "negative head margin",
			mutate: func(c *Config) { c.Pose.Thresholds.HeadMargin = -5 },
			check:  func(c *Config) bool { return c.Pose.Thresholds.HeadMargin == d.Pose.Thresholds.HeadMargin },
		},
		{
			name:   "tolerance beyond a right angle",
			mutate: func(c *Config) { c.Pose.Thresholds.StraightTolerance = 120 },
			check:  func(c *Config) bool { return c.Pose.Thresholds.StraightTolerance == 25 },
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Log.Level = "verbose" },
			check:  func(c *Config) bool { return c.Log.Level == DefaultLogLevel },
		},
		{
			name:   "custom values kept",
			mutate: func(c *Config) { c.Pose.ConfirmFrames = 1; c.Sensor.IdleFPS = 2 },
			check:  func(c *Config) bool { return c.Pose.ConfirmFrames == 1 && c.Sensor.IdleFPS == 2 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !tt.check(c) {
				t.Errorf("Validate() left an invalid value: %+v", c)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("Load() of a missing file (-want +got):\n%s", diff)
	}
}

func TestLoad_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"pose":{"confirm_frames":3},"sensor":{"bridge":["nite-bridge","--mirror"]}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := DefaultConfig()
	want.Pose.ConfirmFrames = 3
	want.Sensor.Bridge = []string{"nite-bridge", "--mirror"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed JSON should fail")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := DefaultConfig()
	c.Sensor.UseCamera = true
	c.Sensor.Camera.API = "openni2"
	c.Paths.Images = "/srv/poses"
	if err := c.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("Load() after Save() (-want +got):\n%s", diff)
	}
}

func TestPathsConfig_Resolve(t *testing.T) {
	p := PathsConfig{
		Database:   "poseview.db",
		Images:     "/srv/poses",
		Plugins:    "plugins",
		Recordings: "",
	}
	want := PathsConfig{
		Database:   filepath.Join("/home/u/.poseview", "poseview.db"),
		Images:     "/srv/poses",
		Plugins:    filepath.Join("/home/u/.poseview", "plugins"),
		Recordings: "",
	}
	if diff := cmp.Diff(want, p.Resolve("/home/u/.poseview")); diff != "" {
		t.Errorf("Resolve() (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    int8
		wantErr bool
	}{
		{"debug", logging.Debug, false},
		{"INFO", logging.Info, false},
		{"", logging.Info, false},
		{"warn", logging.Warning, false},
		{"error", logging.Error, false},
		{"fatal", logging.Fatal, false},
		{"loud", logging.Info, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	dir := t.TempDir()
	c := DefaultConfig().Log

	var buf bytes.Buffer
	log, closer := c.NewLogger(&buf, dir)
	log.Info("pose confirmed", "pose", "NEKO")
	log.Debug("hidden at info level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(buf.String(), "pose confirmed") {
		t.Errorf("stderr output missing message: %q", buf.String())
	}
	if strings.Contains(buf.String(), "hidden at info level") {
		t.Errorf("debug message logged at info level: %q", buf.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, c.File))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "pose confirmed") {
		t.Errorf("log file missing message: %q", data)
	}
}
