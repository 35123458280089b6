package source

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// maxSnapshotBytes bounds a single snapshot response.
const maxSnapshotBytes = 16 << 20

// Snapshot polls an HTTP endpoint that returns one still JPEG, PNG or WebP
// image per request, as many low-cost network cameras expose (for example
// /capture).
//
// Failed requests are retried with the same backoff policy as streams.
type Snapshot struct {
	url       string
	interval  time.Duration
	width     uint
	client    *http.Client
	reconnect ReconnectConfig
	logger    *zap.Logger

	mu     sync.Mutex
	last   time.Time
	closed bool
}

// SnapshotOption configures a Snapshot.
type SnapshotOption func(*Snapshot)

// WithWidth downscales snapshots to width, keeping the aspect ratio. 0 keeps the native size.
func WithWidth(width int) SnapshotOption {
	return func(s *Snapshot) {
		s.width = uint(max(width, 0))
	}
}

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) SnapshotOption {
	return func(s *Snapshot) {
		s.client = client
	}
}

// WithSnapshotReconnect sets the retry policy.
func WithSnapshotReconnect(cfg ReconnectConfig) SnapshotOption {
	return func(s *Snapshot) {
		s.reconnect = cfg
	}
}

// WithSnapshotLogger sets the logger.
func WithSnapshotLogger(logger *zap.Logger) SnapshotOption {
	return func(s *Snapshot) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSnapshot creates a snapshot poller.
//
// Arguments:
//   - url: Endpoint returning a JPEG, PNG or WebP image.
//   - fps: Poll rate; 0 polls as fast as the endpoint answers.
//   - timeout: Per-request timeout.
//   - opts: Width, client, retry policy and logger.
//
// Returns:
//   - *Snapshot: The poller.
//
// @example
// src := source.NewSnapshot("http://192.168.4.1/capture", 5, 5*time.Second, source.WithWidth(640))
func NewSnapshot(url string, fps int, timeout time.Duration, opts ...SnapshotOption) *Snapshot {
	s := &Snapshot{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		reconnect: DefaultReconnectConfig(),
		logger:    zap.NewNop(),
	}
	if fps > 0 {
		s.interval = time.Second / time.Duration(fps)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read fetches the next snapshot, pacing requests to the configured rate.
func (s *Snapshot) Read(ctx context.Context) (motion.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; {
		if s.closed {
			return motion.Frame{}, ErrClosed
		}
		if !s.last.IsZero() {
			if err := sleepUnlocked(ctx, &s.mu, s.interval-time.Since(s.last)); err != nil {
				return motion.Frame{}, err
			}
			if s.closed {
				return motion.Frame{}, ErrClosed
			}
		}
		s.last = time.Now()

		mat, err := s.fetch(ctx)
		if err == nil {
			return motion.Frame{Timestamp: s.last, Mat: mat}, nil
		}
		if ctx.Err() != nil {
			return motion.Frame{}, ctx.Err()
		}

		attempt++
		if s.reconnect.exhausted(attempt) {
			return motion.Frame{}, errors.Wrapf(err, "%s: giving up after %d attempts", s.url, attempt-1)
		}
		delay := s.reconnect.backoff(attempt)
		s.logger.Warn("snapshot failed, retrying",
			zap.String("url", s.url), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		if err := sleepUnlocked(ctx, &s.mu, delay); err != nil {
			return motion.Frame{}, err
		}
	}
}

func (s *Snapshot) fetch(ctx context.Context) (gocv.Mat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to build request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "snapshot request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gocv.Mat{}, errors.Errorf("snapshot returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to read snapshot")
	}
	img, _, err := images.Decode(data)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to decode snapshot")
	}
	if s.width > 0 && uint(img.Bounds().Dx()) != s.width {
		img = resize.Resize(s.width, 0, img, resize.Lanczos3)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to convert snapshot")
	}
	return mat, nil
}

// Close stops the poller. Later reads return ErrClosed.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}
