package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-motion/common"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/sink"
	"github.com/nvr-ai/go-motion/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"motionwatch"}, args...))
	return out.String(), err
}

func TestConfigDefaults(t *testing.T) {
	out, err := runApp(t, "config", "defaults")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("camera:\n  source: stream\n  url: rtsp://cam/1\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("camera:\n  source: stream\n"), 0o644))

	out, err := runApp(t, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, err = runApp(t, "config", "validate", bad)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = runApp(t, "config", "validate")
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")
	store, err := sink.OpenStore(db)
	require.NoError(t, err)
	report := &motion.Report{
		FrameIndex: 42,
		Timestamp:  time.Now().Add(-time.Hour),
		Regions: []common.ClassifiedRegion{
			{Region: common.Region{X: 10, Y: 20, Width: 60, Height: 90}, Label: common.LabelHuman},
		},
		Frame: gocv.NewMat(),
		Mask:  gocv.NewMat(),
	}
	defer report.Close()
	_, err = store.Record(context.Background(), report)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := runApp(t, "events", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "frame=42")

	out, err = runApp(t, "events", "--db", db, "--prune", "1m")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 events")
	assert.Contains(t, out, "no events")

	_, err = runApp(t, "events")
	assert.Error(t, err)
}

func TestOpenSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cam := config.Default().Camera

	cam.Source = config.SourceSnapshot
	cam.URL = "http://127.0.0.1:1/capture"
	src, err := openSource(cam, logger)
	require.NoError(t, err)
	assert.IsType(t, &source.Snapshot{}, src)
	require.NoError(t, src.Close())

	cam.Source = config.SourceStream
	src, err = openSource(cam, logger)
	require.NoError(t, err)
	assert.IsType(t, &source.Capture{}, src)
	require.NoError(t, src.Close())

	cam.Source = config.SourceDirectory
	cam.URL = t.TempDir()
	_, err = openSource(cam, logger)
	assert.Error(t, err)

	cam.Source = "carrier-pigeon"
	_, err = openSource(cam, logger)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Output
	cfg.FramesDir = filepath.Join(dir, "frames")
	cfg.EventLog = filepath.Join(dir, "events.jsonl")
	cfg.Database = filepath.Join(dir, "events.db")

	gate, cleanup, err := outputs(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	report := &motion.Report{
		FrameIndex: 7,
		Timestamp:  time.Now(),
		Regions: []common.ClassifiedRegion{
			{Region: common.Region{X: 1, Y: 1, Width: 20, Height: 30}, Label: common.LabelHuman},
		},
		Frame: frame,
		Mask:  gocv.NewMat(),
	}
	defer report.Close()

	require.NoError(t, gate.Handle(context.Background(), report))
	assert.Equal(t, uint64(1), gate.Alerts())
	cleanup()

	saved, err := filepath.Glob(filepath.Join(cfg.FramesDir, "verified_motion_*.jpg"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.FileExists(t, cfg.EventLog)
}

func TestPreviewKeepsLatest(t *testing.T) {
	p := newPreview(0.5)
	for i := 0; i < 3; i++ {
		report := &motion.Report{
			Frame: gocv.NewMatWithSize(40, 60, gocv.MatTypeCV8UC3),
			Mask:  gocv.NewMat(),
		}
		require.NoError(t, p.Handle(context.Background(), report))
		report.Close()
	}
	require.Len(t, p.frames, 1)

	f := <-p.frames
	assert.Equal(t, 30, f.frame.Cols())
	assert.Equal(t, 20, f.frame.Rows())
	assert.True(t, f.mask.Empty())
	f.close()

	empty := &motion.Report{Frame: gocv.NewMat(), Mask: gocv.NewMat()}
	defer empty.Close()
	require.NoError(t, p.Handle(context.Background(), empty))
	assert.Empty(t, p.frames)
}
