package motion

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/nvr-ai/go-motion/common"
	"gocv.io/x/gocv"
)

// Report is the per-frame output of the pipeline.
//
// Frame holds a copy of the input, annotated when annotation is enabled; it is
// empty only for anomalous frames. Mask holds a copy of the motion mask when
// the threshold view is on and is empty otherwise. Sinks must not retain the
// Mats past Close.
type Report struct {
	FrameIndex uint64
	Timestamp  time.Time
	Regions    []common.ClassifiedRegion
	Frame      gocv.Mat
	Mask       gocv.Mat
	CutLevel   float32
	Stats      SceneStats
	// ManualSave is set when a save was requested for this frame, regardless of detections.
	ManualSave bool
	// BackgroundReset is set when the background was re-initialized on this frame.
	BackgroundReset bool
	// Anomaly records why a frame degraded to "no detection", nil otherwise.
	Anomaly error
}

// HasDetections reports whether any region was confirmed on this frame.
func (r *Report) HasDetections() bool {
	return len(r.Regions) > 0
}

// HumanCount is the number of regions labeled human.
func (r *Report) HumanCount() int {
	n := 0
	for _, c := range r.Regions {
		if c.Label == common.LabelHuman {
			n++
		}
	}
	return n
}

// MotionCount is the number of regions labeled motion.
func (r *Report) MotionCount() int {
	return len(r.Regions) - r.HumanCount()
}

// TotalArea sums the area of all confirmed regions.
func (r *Report) TotalArea() int {
	total := 0
	for _, c := range r.Regions {
		total += c.Area()
	}
	return total
}

// Close releases the report's Mats.
func (r *Report) Close() {
	r.Frame.Close()
	r.Mask.Close()
}

var (
	alertTextColor = color.RGBA{255, 0, 0, 0}
	infoTextColor  = color.RGBA{255, 255, 255, 0}
	statsTextColor = color.RGBA{255, 255, 0, 0}
)

// Annotator draws detections and a status overlay onto frames.
type Annotator struct {
	Thickness int
	FontScale float64
}

// DefaultAnnotator returns the annotator used by the Detector.
func DefaultAnnotator() Annotator {
	return Annotator{Thickness: 2, FontScale: 0.6}
}

// Annotate returns a BGR copy of frame with boxes, labels and the status overlay drawn on it.
//
// Arguments:
//   - frame: The source frame, left untouched.
//   - report: The report whose regions, cut level and timestamp are drawn.
//
// Returns:
//   - gocv.Mat: The annotated copy. The caller must Close it.
func (a Annotator) Annotate(frame gocv.Mat, report *Report) gocv.Mat {
	img := gocv.NewMat()
	if frame.Empty() {
		return img
	}
	if frame.Channels() == 1 {
		gocv.CvtColor(frame, &img, gocv.ColorGrayToBGR)
	} else {
		frame.CopyTo(&img)
	}

	for _, c := range report.Regions {
		rectColor := c.Label.Color()
		gocv.Rectangle(&img, c.Rect(), rectColor, a.Thickness)
		textPt := image.Pt(c.X, max(c.Y-8, 12))
		gocv.PutText(&img, fmt.Sprintf("%s %d", c.Label, c.Area()), textPt,
			gocv.FontHersheySimplex, a.FontScale, rectColor, 1)
	}

	status, statusColor := "No Motion", infoTextColor
	if report.HasDetections() {
		status, statusColor = "VERIFIED MOTION!", alertTextColor
	}
	gocv.PutText(&img, status, image.Pt(10, 30), gocv.FontHersheySimplex, 1.0, statusColor, 2)

	lines := []string{
		fmt.Sprintf("Frame: %d", report.FrameIndex),
		fmt.Sprintf("Threshold: %.1f", report.CutLevel),
		fmt.Sprintf("Human: %d  Motion: %d", report.HumanCount(), report.MotionCount()),
	}
	y := 60
	for _, line := range lines {
		gocv.PutText(&img, line, image.Pt(10, y), gocv.FontHersheySimplex, a.FontScale, statsTextColor, 1)
		y += 25
	}

	if !report.Timestamp.IsZero() {
		gocv.PutText(&img, report.Timestamp.Format("2006-01-02 15:04:05.000"), image.Pt(10, img.Rows()-10),
			gocv.FontHersheySimplex, 0.5, infoTextColor, 1)
	}

	return img
}
