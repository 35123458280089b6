package source

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// videoReader is the part of gocv.VideoCapture a Capture uses.
type videoReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// opener opens (or re-opens) the underlying capture.
type opener func() (videoReader, error)

// Capture reads frames from an OpenCV video capture: a local device, a
// network stream or a video file.
//
// Devices and streams reconnect with exponential backoff after a failed
// read. Files end with io.EOF.
type Capture struct {
	name      string
	open      opener
	live      bool
	size      image.Point
	reconnect ReconnectConfig
	logger    *zap.Logger

	mu         sync.Mutex
	reader     videoReader
	closed     bool
	reconnects int
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithSize resizes every frame to width x height. Zero keeps the native size.
func WithSize(width, height int) CaptureOption {
	return func(c *Capture) {
		c.size = image.Pt(width, height)
	}
}

// WithReconnect sets the reconnection policy for live sources.
func WithReconnect(cfg ReconnectConfig) CaptureOption {
	return func(c *Capture) {
		c.reconnect = cfg
	}
}

// WithCaptureLogger sets the logger.
func WithCaptureLogger(logger *zap.Logger) CaptureOption {
	return func(c *Capture) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDevice captures from a local camera.
//
// @example
// src := source.NewDevice(0, 30, source.WithSize(640, 480))
// defer src.Close()
func NewDevice(index, fps int, opts ...CaptureOption) *Capture {
	c := newCapture("device", true, opts)
	c.open = func() (videoReader, error) {
		vc, err := gocv.OpenVideoCapture(index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open camera %d", index)
		}
		if c.size.X > 0 && c.size.Y > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(c.size.X))
			vc.Set(gocv.VideoCaptureFrameHeight, float64(c.size.Y))
		}
		if fps > 0 {
			vc.Set(gocv.VideoCaptureFPS, float64(fps))
		}
		return vc, nil
	}
	return c
}

// NewStream captures from a network stream (RTSP, HTTP MJPEG, ...).
func NewStream(url string, opts ...CaptureOption) *Capture {
	c := newCapture(url, true, opts)
	c.open = func() (videoReader, error) {
		vc, err := gocv.OpenVideoCapture(url)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open stream %s", url)
		}
		return vc, nil
	}
	return c
}

// NewFile reads a video file once.
func NewFile(path string, opts ...CaptureOption) *Capture {
	c := newCapture(path, false, opts)
	c.open = func() (videoReader, error) {
		vc, err := gocv.VideoCaptureFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open video %s", path)
		}
		return vc, nil
	}
	return c
}

func newCapture(name string, live bool, opts []CaptureOption) *Capture {
	c := &Capture{
		name:      name,
		live:      live,
		reconnect: DefaultReconnectConfig(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the next frame.
//
// For live sources a failed open or read triggers reconnection; Read only
// returns an error when ctx is done, the source is closed, or the retry
// budget is exhausted. Close does not wait for a pending backoff.
func (c *Capture) Read(ctx context.Context) (motion.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	img := gocv.NewMat()
	attempt := 0
	for {
		if c.closed {
			img.Close()
			return motion.Frame{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			img.Close()
			return motion.Frame{}, err
		}

		if c.reader == nil {
			reader, err := c.open()
			if err != nil {
				if !c.live {
					img.Close()
					return motion.Frame{}, err
				}
				attempt++
				if err := c.waitUnlocked(ctx, attempt, err); err != nil {
					img.Close()
					return motion.Frame{}, err
				}
				continue
			}
			c.reader = reader
			if attempt > 0 {
				c.reconnects++
				c.logger.Info("capture reconnected", zap.String("source", c.name), zap.Int("attempts", attempt))
			}
		}

		if c.reader.Read(&img) && !img.Empty() {
			return motion.Frame{Timestamp: time.Now(), Mat: c.resize(img)}, nil
		}

		c.reader.Close()
		c.reader = nil
		if !c.live {
			img.Close()
			return motion.Frame{}, io.EOF
		}
		attempt++
		if err := c.waitUnlocked(ctx, attempt, errors.New("read failed")); err != nil {
			img.Close()
			return motion.Frame{}, err
		}
	}
}

// waitUnlocked sleeps out the backoff for attempt with c.mu released, so Close
// is not held up by a pending retry. c.mu must be held on entry; it is held
// again on return.
func (c *Capture) waitUnlocked(ctx context.Context, attempt int, cause error) error {
	if c.reconnect.exhausted(attempt) {
		return errors.Wrapf(cause, "%s: giving up after %d attempts", c.name, attempt-1)
	}
	delay := c.reconnect.backoff(attempt)
	c.logger.Warn("capture failed, retrying",
		zap.String("source", c.name),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause))
	return sleepUnlocked(ctx, &c.mu, delay)
}

func (c *Capture) resize(img gocv.Mat) gocv.Mat {
	if c.size.X <= 0 || c.size.Y <= 0 || (img.Cols() == c.size.X && img.Rows() == c.size.Y) {
		return img
	}
	out := gocv.NewMat()
	gocv.Resize(img, &out, c.size, 0, 0, gocv.InterpolationArea)
	img.Close()
	return out
}

// Reconnects is the number of successful reconnections so far.
func (c *Capture) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Close releases the capture. Later reads return ErrClosed.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.reader == nil {
		return nil
	}
	err := c.reader.Close()
	c.reader = nil
	return err
}
