package motion

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single frame of video.
//
// Mat is BGR (3 channels), BGRA (4 channels) or gray (1 channel), 8 bits per
// sample. The pipeline reads it during Process and never retains it.
type Frame struct {
	Index     uint64
	Timestamp time.Time
	Mat       gocv.Mat
}

// Close releases the frame's Mat.
func (f *Frame) Close() {
	f.Mat.Close()
}
