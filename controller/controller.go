// Package controller drives frames from a source through the motion pipeline
// and hands the resulting reports to sinks.
package controller

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize is the number of frames buffered between the reader and the pipeline.
const DefaultQueueSize = 4

// errQuit stops Run without reporting an error.
var errQuit = errors.New("quit requested")

// Frame is a single frame of video.
type Frame = motion.Frame

// FrameSource produces frames in capture order.
//
// Read blocks until a frame is available, ctx is done, or the source is
// exhausted (io.EOF). The caller owns the returned frame's Mat.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Sink consumes detection reports. The report and its Mats are only valid
// for the duration of the call.
type Sink interface {
	Handle(ctx context.Context, report *motion.Report) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, report *motion.Report) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, report *motion.Report) error {
	return f(ctx, report)
}

// Pipeline is the per-frame analysis stage; *motion.Detector implements it.
type Pipeline interface {
	Process(frame motion.Frame) *motion.Report
	Reset()
	RequestSave()
	SetShowThreshold(show bool)
	ShowThreshold() bool
}

// Command is an operator control signal.
type Command int

const (
	// CommandResetBackground re-initializes the background on the next frame.
	CommandResetBackground Command = iota + 1
	// CommandSave saves the next frame regardless of detections.
	CommandSave
	// CommandToggleThreshold toggles the motion-mask view.
	CommandToggleThreshold
	// CommandQuit stops Run.
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandResetBackground:
		return "reset-background"
	case CommandSave:
		return "save"
	case CommandToggleThreshold:
		return "toggle-threshold"
	case CommandQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Stats counts the frames that went through the controller.
type Stats struct {
	Read       uint64
	Processed  uint64
	Dropped    uint64
	SinkErrors uint64
}

// Controller reads frames on one goroutine and processes them, in arrival
// order, on the goroutine that called Run.
//
// The queue between the two is bounded. When the pipeline falls behind, the
// oldest queued frame is dropped so that the newest frames are analyzed.
type Controller struct {
	source    FrameSource
	pipeline  Pipeline
	sinks     []Sink
	logger    *zap.Logger
	queueSize int
	commands  chan Command

	read       atomic.Uint64
	processed  atomic.Uint64
	dropped    atomic.Uint64
	sinkErrors atomic.Uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueueSize sets the frame queue capacity. Values below 1 are raised to 1.
func WithQueueSize(size int) Option {
	return func(c *Controller) {
		c.queueSize = max(size, 1)
	}
}

// WithSinks appends report sinks, called in order for every frame.
func WithSinks(sinks ...Sink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// New creates a controller.
//
// Arguments:
//   - source: Where frames come from. Run closes it on return.
//   - pipeline: The analysis stage, usually a *motion.Detector.
//   - opts: Logger, queue size and sinks.
//
// Returns:
//   - *Controller: A controller ready to Run.
//
// @example
// ctrl := controller.New(src, detector, controller.WithSinks(saver, store))
// err := ctrl.Run(ctx)
func New(source FrameSource, pipeline Pipeline, opts ...Option) *Controller {
	c := &Controller{
		source:    source,
		pipeline:  pipeline,
		logger:    zap.NewNop(),
		queueSize: DefaultQueueSize,
		commands:  make(chan Command, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commands returns the channel operator commands are sent on.
func (c *Controller) Commands() chan<- Command {
	return c.commands
}

// Send queues a command without blocking. It reports false when the command
// buffer is full.
func (c *Controller) Send(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		return false
	}
}

// Stats returns the frame counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Read:       c.read.Load(),
		Processed:  c.processed.Load(),
		Dropped:    c.dropped.Load(),
		SinkErrors: c.sinkErrors.Load(),
	}
}

// Run processes frames until the source is exhausted, ctx is canceled, or
// CommandQuit is received.
//
// Sink failures are logged and never stop the loop. A source failure other
// than io.EOF stops the loop and is returned.
//
// Arguments:
//   - ctx: Cancels the loop; checked between frames.
//
// Returns:
//   - error: nil on end of stream, cancellation or quit, the source error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		if err := c.source.Close(); err != nil {
			c.logger.Warn("closing frame source", zap.Error(err))
		}
	}()

	queue := make(chan Frame, c.queueSize)
	defer func() {
		for frame := range queue {
			frame.Close()
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(queue)
		return c.readLoop(groupCtx, queue)
	})
	group.Go(func() error {
		return c.processLoop(groupCtx, queue)
	})

	err := group.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		err = nil
	}

	stats := c.Stats()
	c.logger.Info("controller stopped",
		zap.Uint64("read", stats.Read),
		zap.Uint64("processed", stats.Processed),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("sink_errors", stats.SinkErrors),
		zap.Error(err))

	return err
}

func (c *Controller) readLoop(ctx context.Context, queue chan Frame) error {
	for {
		frame, err := c.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reading frame")
		}

		n := c.read.Add(1)
		if frame.Index == 0 {
			frame.Index = n
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now()
		}
		c.enqueue(queue, frame)
	}
}

// enqueue adds frame, dropping the oldest queued frame when the queue is full.
// Only the read loop sends, so a slot is always free after one receive.
func (c *Controller) enqueue(queue chan Frame, frame Frame) {
	for {
		select {
		case queue <- frame:
			return
		default:
		}
		select {
		case old := <-queue:
			old.Close()
			c.dropped.Add(1)
			c.logger.Debug("frame dropped", zap.Uint64("frame", old.Index))
		default:
		}
	}
}

func (c *Controller) processLoop(ctx context.Context, queue <-chan Frame) error {
	for {
		// Pending commands take effect before the next frame.
		select {
		case cmd := <-c.commands:
			if err := c.apply(cmd); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			if err := c.apply(cmd); err != nil {
				return err
			}
		case frame, ok := <-queue:
			if !ok {
				return nil
			}
			c.handle(ctx, frame)
		}
	}
}

func (c *Controller) apply(cmd Command) error {
	c.logger.Info("command", zap.Stringer("command", cmd))
	switch cmd {
	case CommandResetBackground:
		c.pipeline.Reset()
	case CommandSave:
		c.pipeline.RequestSave()
	case CommandToggleThreshold:
		c.pipeline.SetShowThreshold(!c.pipeline.ShowThreshold())
	case CommandQuit:
		return errQuit
	}
	return nil
}

func (c *Controller) handle(ctx context.Context, frame Frame) {
	defer frame.Close()

	report := c.pipeline.Process(frame)
	defer report.Close()
	c.processed.Add(1)

	for _, sink := range c.sinks {
		if err := sink.Handle(ctx, report); err != nil {
			c.sinkErrors.Add(1)
			c.logger.Warn("sink failed", zap.Uint64("frame", report.FrameIndex), zap.Error(err))
		}
	}
}
