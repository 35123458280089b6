package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageFile is one image in a frame directory.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the number parsed from the file name, -1 when it has none.
	Frame int
}

// ListDirectoryImageFiles lists the image files of a directory in frame order.
//
// Files named like frame-12.jpg (or any name ending in digits) are ordered by
// that number; the rest follow in name order.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The files in playback order.
//   - error: Error if the directory cannot be read.
func ListDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
			files = append(files, ImageFile{
				Path:  filepath.Join(dir, entry.Name()),
				Frame: frameNumber(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))),
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0 && a.Frame != b.Frame:
			return a.Frame < b.Frame
		case (a.Frame >= 0) != (b.Frame >= 0):
			return a.Frame >= 0
		default:
			return a.Path < b.Path
		}
	})

	return files, nil
}

// frameNumber parses the trailing digits of name, -1 if there are none.
func frameNumber(name string) int {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return -1
	}
	return n
}

// Directory plays back a directory of still images as a frame sequence.
type Directory struct {
	files    []ImageFile
	interval time.Duration

	mu     sync.Mutex
	next   int
	last   time.Time
	closed bool
}

// NewDirectory lists dir and returns a source that yields its images in
// frame order, paced to fps (0 for as fast as possible).
func NewDirectory(dir string, fps int) (*Directory, error) {
	files, err := ListDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	d := &Directory{files: files}
	if fps > 0 {
		d.interval = time.Second / time.Duration(fps)
	}
	return d, nil
}

// Read decodes the next image. It returns io.EOF after the last one.
// Unreadable images are skipped.
func (d *Directory) Read(ctx context.Context) (motion.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.closed {
			return motion.Frame{}, ErrClosed
		}
		if d.next >= len(d.files) {
			return motion.Frame{}, io.EOF
		}
		if !d.last.IsZero() {
			if err := sleepUnlocked(ctx, &d.mu, d.interval-time.Since(d.last)); err != nil {
				return motion.Frame{}, err
			}
		} else if err := ctx.Err(); err != nil {
			return motion.Frame{}, err
		}
		if d.closed {
			return motion.Frame{}, ErrClosed
		}

		file := d.files[d.next]
		d.next++
		img := gocv.IMRead(file.Path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			continue
		}
		d.last = time.Now()
		return motion.Frame{Timestamp: d.last, Mat: img}, nil
	}
}

// Len is the number of images in the directory.
func (d *Directory) Len() int {
	return len(d.files)
}

// Close stops playback.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
