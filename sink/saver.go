package sink

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when a report carries no image to save.
var ErrNoFrame = errors.New("report has no frame")

// Saver writes report frames to JPEG files.
//
// Verified detections are saved as verified_motion_<time>_<id>.jpg and
// manual requests as manual_save_<time>_<id>.jpg. When the report carries a
// motion mask it is saved next to the frame with a _mask suffix.
type Saver struct {
	dir     string
	quality int
	logger  *zap.Logger

	mu    sync.Mutex
	saved []string
}

// NewSaver creates the output directory and returns a saver writing into it.
//
// Arguments:
//   - dir: Output directory, created if missing.
//   - quality: JPEG quality, 1-100.
//   - logger: Receives one line per saved file.
//
// Returns:
//   - *Saver: The saver.
//   - error: The directory could not be created.
func NewSaver(dir string, quality int, logger *zap.Logger) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{dir: dir, quality: quality, logger: logger}, nil
}

// Handle saves the report's annotated frame.
func (s *Saver) Handle(_ context.Context, report *motion.Report) error {
	if report.Frame.Empty() {
		return ErrNoFrame
	}

	prefix := "verified_motion"
	if !report.HasDetections() && report.ManualSave {
		prefix = "manual_save"
	}
	base := filepath.Join(s.dir, prefix+"_"+report.Timestamp.Format("20060102_150405.000")+"_"+uuid.NewString()[:8])

	path := base + ".jpg"
	if err := s.write(path, report.Frame); err != nil {
		return err
	}
	if !report.Mask.Empty() {
		if err := s.write(base+"_mask.jpg", report.Mask); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.saved = append(s.saved, path)
	s.mu.Unlock()

	s.logger.Info("frame saved",
		zap.String("path", path),
		zap.Uint64("frame", report.FrameIndex),
		zap.Int("regions", len(report.Regions)))
	return nil
}

func (s *Saver) write(path string, img gocv.Mat) error {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), s.quality})
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	defer buf.Close()

	if err := os.WriteFile(path, buf.GetBytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// Saved returns the paths of all frames written so far.
func (s *Saver) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}
