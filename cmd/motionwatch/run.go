package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/controller"
	"github.com/nvr-ai/go-motion/logging"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/profiler"
	"github.com/nvr-ai/go-motion/sink"
	"github.com/nvr-ai/go-motion/source"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func applyOverrides(c *cli.Context, cfg *config.Config) error {
	if v := c.String(flagSource); v != "" {
		cfg.Camera.Source = v
	}
	if v := c.String(flagURL); v != "" {
		cfg.Camera.URL = v
	}
	if v := c.Int(flagDevice); v >= 0 {
		cfg.Camera.Source = config.SourceDevice
		cfg.Camera.Index = v
	}
	if c.Bool(flagNoWindow) {
		cfg.Display.Enabled = false
	}
	if v := c.String(flagLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return cfg.Validate()
}

func openSource(cam config.CameraConfig, logger *zap.Logger) (controller.FrameSource, error) {
	reconnect := source.ReconnectConfig{
		RetryDelay:    cam.ReconnectDelay,
		MaxRetryDelay: cam.MaxReconnectDelay,
	}
	width, height := cam.FrameSize()
	opts := []source.CaptureOption{
		source.WithSize(width, height),
		source.WithReconnect(reconnect),
		source.WithCaptureLogger(logger),
	}

	switch cam.Source {
	case config.SourceDevice:
		return source.NewDevice(cam.Index, cam.FPS, opts...), nil
	case config.SourceStream:
		return source.NewStream(cam.URL, opts...), nil
	case config.SourceFile:
		return source.NewFile(cam.URL, opts...), nil
	case config.SourceSnapshot:
		return source.NewSnapshot(cam.URL, cam.FPS, cam.RequestTimeout,
			source.WithWidth(width),
			source.WithSnapshotReconnect(reconnect),
			source.WithSnapshotLogger(logger)), nil
	case config.SourceDirectory:
		return source.NewDirectory(cam.URL, cam.FPS)
	}
	return nil, errors.Wrapf(config.ErrInvalid, "unknown source %q", cam.Source)
}

// outputs builds the gated alert sinks. The returned cleanup closes them.
func outputs(cfg config.OutputConfig, logger *zap.Logger) (*sink.Gate, func(), error) {
	var (
		sinks   []controller.Sink
		closers []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("failed to close output", zap.Error(err))
			}
		}
	}

	sinks = append(sinks, controller.SinkFunc(func(_ context.Context, report *motion.Report) error {
		if report.HasDetections() {
			logger.Info("verified motion",
				zap.Uint64("frame", report.FrameIndex),
				zap.Int("objects", len(report.Regions)),
				zap.Int("humans", report.HumanCount()),
				zap.Int("total_area", report.TotalArea()))
		}
		return nil
	}))

	if cfg.SaveFrames {
		saver, err := sink.NewSaver(cfg.FramesDir, cfg.JPEGQuality, logger)
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, saver)
	}
	if cfg.EventLog != "" {
		events := sink.NewEventLog(cfg.EventLog, 50, 5, 30)
		closers = append(closers, events.Close)
		sinks = append(sinks, events)
	}
	if cfg.Database != "" {
		store, err := sink.OpenStore(cfg.Database)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, store.Close)
		sinks = append(sinks, store)
	}

	return sink.NewGate(cfg.AlertCooldown, sinks...), cleanup, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyOverrides(c, cfg); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	src, err := openSource(cfg.Camera, logger.Named("source"))
	if err != nil {
		return err
	}

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: c.Duration(flagProfileInterval),
		Logger:         logger.Named("profiler"),
	})
	detector := motion.NewDetector(cfg.Motion,
		motion.WithLogger(logger.Named("motion")),
		motion.WithStageTimer(prof))
	defer detector.Close()
	detector.SetShowThreshold(cfg.Display.ShowThreshold)

	prof.AddMetricsCollector(profiler.CollectorFunc(func() map[string]float64 {
		s := detector.Stats()
		return map[string]float64{
			"cut_level":        float64(s.CutLevel),
			"avg_frame_diff":   s.AverageFrameDiff,
			"lighting":         s.LightingBaseline,
			"frames_processed": float64(s.FramesProcessed),
		}
	}))
	if c.Duration(flagProfileInterval) > 0 {
		prof.Start()
		defer prof.Stop()
	}

	gate, closeOutputs, err := outputs(cfg.Output, logger.Named("output"))
	defer closeOutputs()
	if err != nil {
		src.Close()
		return err
	}
	sinks := []controller.Sink{gate}

	var window *preview
	if cfg.Display.Enabled {
		window = newPreview(cfg.Display.WindowScale)
		sinks = append(sinks, window)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := c.String(flagConfig); path != "" && c.Bool(flagWatch) {
		go func() {
			err := config.Watch(ctx, path, logger.Named("config"), func(next *config.Config) {
				detector.UpdateConfig(next.Motion)
				logger.Info("motion settings reloaded", zap.String("path", path))
			})
			if err != nil {
				logger.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	ctrl := controller.New(src, detector,
		controller.WithLogger(logger.Named("controller")),
		controller.WithQueueSize(cfg.Camera.QueueSize),
		controller.WithSinks(sinks...))

	logger.Info("motionwatch started",
		zap.String("source", cfg.Camera.Source),
		zap.String("url", cfg.Camera.URL),
		zap.Int("device", cfg.Camera.Index),
		zap.Bool("window", cfg.Display.Enabled))

	if window == nil {
		err = ctrl.Run(ctx)
	} else {
		done := make(chan error, 1)
		go func() { done <- ctrl.Run(ctx) }()
		err = window.loop(done, ctrl.Send)
	}

	printSummary(c, detector.Stats(), ctrl.Stats(), gate.Alerts())
	return err
}

func printSummary(c *cli.Context, stats motion.Stats, ctrl controller.Stats, alerts uint64) {
	w := c.App.Writer
	fmt.Fprintln(w, "Final statistics:")
	fmt.Fprintf(w, "  Frames read: %d (dropped %d)\n", ctrl.Read, ctrl.Dropped)
	fmt.Fprintf(w, "  Frames processed: %d\n", stats.FramesProcessed)
	fmt.Fprintf(w, "  Verified detections: %d (%.1f%%)\n", stats.VerifiedFrames, stats.DetectionRate())
	fmt.Fprintf(w, "  Human regions: %d, other motion: %d\n", stats.HumanDetections, stats.MotionDetections)
	fmt.Fprintf(w, "  Alerts: %d, sink errors: %d\n", alerts, ctrl.SinkErrors)
	fmt.Fprintf(w, "  Background resets: %d\n", stats.BackgroundResets)
	fmt.Fprintf(w, "  Average frame difference: %.2f\n", stats.AverageFrameDiff)
	fmt.Fprintf(w, "  Lighting baseline: %.1f\n", stats.LightingBaseline)
}
