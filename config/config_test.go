package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25.0, cfg.Motion.MotionThreshold)
	assert.Equal(t, 500, cfg.Motion.MinContourArea)
	assert.Equal(t, 3, cfg.Motion.PersistenceFrames)
	assert.Equal(t, 2*time.Second, cfg.Output.AlertCooldown)
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
camera:
  source: stream
  url: rtsp://10.0.0.5/stream1
  reconnect_delay: 500ms
motion:
  motion_threshold: 30
  min_human_area: 8000
  motion_persistence_frames: 2
  adaptive_threshold: false
  auto_reset_interval: 10m
output:
  alert_cooldown: 5s
  database: events.db
logging:
  format: json
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, SourceStream, cfg.Camera.Source)
	assert.Equal(t, "rtsp://10.0.0.5/stream1", cfg.Camera.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Camera.ReconnectDelay)
	assert.Equal(t, 30.0, cfg.Motion.MotionThreshold)
	assert.Equal(t, 8000, cfg.Motion.MinHumanArea)
	assert.Equal(t, 2, cfg.Motion.PersistenceFrames)
	assert.False(t, cfg.Motion.AdaptiveThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Motion.AutoResetInterval)
	assert.Equal(t, 5*time.Second, cfg.Output.AlertCooldown)
	assert.Equal(t, "events.db", cfg.Output.Database)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, 21, cfg.Motion.GaussianBlurSize)
	assert.Equal(t, 640, cfg.Camera.Width)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		motion bool
	}{
		{"human area below contour area", func(c *Config) { c.Motion.MinHumanArea = 100 }, true},
		{"even blur size", func(c *Config) { c.Motion.GaussianBlurSize = 20 }, true},
		{"zero persistence", func(c *Config) { c.Motion.PersistenceFrames = 0 }, true},
		{"threshold above 255", func(c *Config) { c.Motion.MotionThreshold = 300 }, true},
		{"learning rate zero", func(c *Config) { c.Motion.BackgroundLearningRate = 0 }, true},
		{"unknown source", func(c *Config) { c.Camera.Source = "carrier-pigeon" }, false},
		{"stream without url", func(c *Config) { c.Camera.Source = SourceStream }, false},
		{"zero queue", func(c *Config) { c.Camera.QueueSize = 0 }, false},
		{"reconnect delays inverted", func(c *Config) { c.Camera.MaxReconnectDelay = time.Millisecond }, false},
		{"zero reconnect delay", func(c *Config) { c.Camera.ReconnectDelay = 0 }, false},
		{"jpeg quality", func(c *Config) { c.Output.JPEGQuality = 0 }, false},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"window scale", func(c *Config) { c.Display.WindowScale = 0 }, false},
		{"unknown resolution", func(c *Config) { c.Camera.Resolution = "16k" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.motion {
				assert.ErrorIs(t, err, motion.ErrInvalidConfig)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestFrameSize(t *testing.T) {
	cam := Default().Camera
	w, h := cam.FrameSize()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	cam.Resolution = "720p"
	w, h = cam.FrameSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("motion: [unterminated"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "motionwatch.yaml")

	cfg := Default()
	cfg.Motion.MotionThreshold = 40
	cfg.Motion.AutoResetInterval = 15 * time.Minute
	cfg.Camera.Source = SourceDirectory
	cfg.Camera.URL = "/var/frames"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWatchAppliesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motionwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motion:\n  motion_threshold: 25\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zaptest.NewLogger(t), func(cfg *Config) { applied <- cfg })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is ignored.
	require.NoError(t, os.WriteFile(path, []byte("motion:\n  motion_persistence_frames: 0\n"), 0o644))
	time.Sleep(3 * reloadDelay)
	require.NoError(t, os.WriteFile(path, []byte("motion:\n  motion_threshold: 42\n"), 0o644))

	select {
	case cfg := <-applied:
		assert.Equal(t, 42.0, cfg.Motion.MotionThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop")
	}
}
