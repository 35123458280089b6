package motion

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when a frame carries no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// BackgroundModel maintains a running reference image of the static scene.
//
// Each incoming frame is converted to grayscale and smoothed with a Gaussian
// kernel before it is compared against the reference. The reference is a
// CV32F running average, so slow lighting drift is absorbed while genuine
// motion still produces a strong difference.
type BackgroundModel struct {
	blurSize     int
	learningRate float64

	// reference is the CV32F running average. Empty until the first frame.
	reference gocv.Mat
	// blurred is the last preprocessed (gray, smoothed) frame.
	blurred gocv.Mat

	brightness    float64
	reinitialized bool
}

// NewBackgroundModel creates a background model.
//
// Arguments:
//   - blurSize: Gaussian kernel size; even sizes are bumped to the next odd, <= 1 disables smoothing.
//   - learningRate: Fraction of each new frame blended into the reference.
//
// Returns:
//   - *BackgroundModel: A model that initializes itself on the first Update.
//
// @example
// bg := NewBackgroundModel(21, 0.02)
// defer bg.Close()
// diff, err := bg.Update(frame)
func NewBackgroundModel(blurSize int, learningRate float64) *BackgroundModel {
	return &BackgroundModel{
		blurSize:     normalizeKernel(blurSize),
		learningRate: learningRate,
		reference:    gocv.NewMat(),
		blurred:      gocv.NewMat(),
	}
}

// Update diffs the frame against the reference and then blends the frame into it.
//
// On the first call, after Reset, or when the frame size differs from the
// reference, the preprocessed frame becomes the new reference verbatim and an
// all-zero difference map is returned.
//
// Arguments:
//   - frame: BGR, BGRA or gray 8-bit frame.
//
// Returns:
//   - gocv.Mat: Single channel 8-bit absolute difference map. The caller must Close it.
//   - error: ErrEmptyFrame if the frame has no pixels.
func (b *BackgroundModel) Update(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}

	b.preprocess(frame)
	b.brightness, _ = intensityStats(b.blurred)

	if b.reference.Empty() ||
		b.reference.Rows() != b.blurred.Rows() ||
		b.reference.Cols() != b.blurred.Cols() {
		b.initialize()
		return zeroMat(b.blurred.Rows(), b.blurred.Cols()), nil
	}
	b.reinitialized = false

	referenceU8 := gocv.NewMat()
	defer referenceU8.Close()
	b.reference.ConvertTo(&referenceU8, gocv.MatTypeCV8U)

	diff := gocv.NewMat()
	gocv.AbsDiff(b.blurred, referenceU8, &diff)

	gocv.AccumulatedWeighted(b.blurred, &b.reference, b.learningRate)

	return diff, nil
}

// Reset drops the reference so the next frame re-initializes it.
func (b *BackgroundModel) Reset() {
	b.reference.Close()
	b.reference = gocv.NewMat()
}

// Brightness is the mean intensity of the last preprocessed frame.
func (b *BackgroundModel) Brightness() float64 {
	return b.brightness
}

// Reinitialized reports whether the last Update stored a new reference.
func (b *BackgroundModel) Reinitialized() bool {
	return b.reinitialized
}

// SetLearningRate changes the blending weight used by subsequent updates.
func (b *BackgroundModel) SetLearningRate(rate float64) {
	b.learningRate = rate
}

// SetBlurSize changes the smoothing kernel. A different size forces a reset,
// since the stored reference was smoothed with the old kernel.
func (b *BackgroundModel) SetBlurSize(size int) {
	size = normalizeKernel(size)
	if size != b.blurSize {
		b.blurSize = size
		b.Reset()
	}
}

// Close releases the native resources held by the model.
func (b *BackgroundModel) Close() {
	b.reference.Close()
	b.blurred.Close()
}

func (b *BackgroundModel) initialize() {
	b.reference.Close()
	b.reference = gocv.NewMat()
	b.blurred.ConvertTo(&b.reference, gocv.MatTypeCV32F)
	b.reinitialized = true
}

// preprocess converts frame to gray and smooths it into b.blurred.
func (b *BackgroundModel) preprocess(frame gocv.Mat) {
	gray := gocv.NewMat()
	defer gray.Close()

	switch frame.Channels() {
	case 3:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
	default:
		frame.CopyTo(&gray)
	}

	if b.blurSize > 1 {
		gocv.GaussianBlur(gray, &b.blurred, image.Pt(b.blurSize, b.blurSize), 0, 0, gocv.BorderDefault)
		return
	}
	gray.CopyTo(&b.blurred)
}

func normalizeKernel(size int) int {
	if size <= 1 {
		return 0
	}
	if size%2 == 0 {
		return size + 1
	}
	return size
}

func zeroMat(rows, cols int) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m
}
