package motion

import (
	"github.com/chewxy/math32"
	"gocv.io/x/gocv"
)

// SceneStats are the bounded-window statistics the adaptive cut level is derived from.
type SceneStats struct {
	// Brightness is the moving average of mean frame intensity.
	Brightness float64
	// DiffMean and DiffVariance are moving averages of the difference map's intensity moments.
	DiffMean     float64
	DiffVariance float64
	// Frames is the number of difference maps observed since the last reset.
	Frames int
}

// AdaptiveThresholder binarizes difference maps with a cut level tuned from recent scene statistics.
//
// Brighter or noisier recent frames raise the cut level, darker or quieter
// ones lower it. The adjustment is bounded by the configured offsets so a
// single burst of motion cannot blind the detector.
type AdaptiveThresholder struct {
	base      float32
	adaptive  bool
	brightGn  float64
	noiseGn   float64
	minOffset float32
	maxOffset float32

	brightness ema
	diffMean   ema
	diffVar    ema
	frames     int

	cut float32
}

// NewAdaptiveThresholder creates a thresholder from the pipeline configuration.
func NewAdaptiveThresholder(cfg Config) *AdaptiveThresholder {
	a := &AdaptiveThresholder{}
	a.configure(cfg)
	a.cut = a.base
	return a
}

func (a *AdaptiveThresholder) configure(cfg Config) {
	alpha := newEMA(cfg.StatsWindow).alpha
	a.brightness.alpha = alpha
	a.diffMean.alpha = alpha
	a.diffVar.alpha = alpha
	a.base = float32(cfg.MotionThreshold)
	a.adaptive = cfg.AdaptiveThreshold
	a.brightGn = cfg.BrightnessGain
	a.noiseGn = cfg.NoiseGain
	a.minOffset = float32(cfg.MinThresholdOffset)
	a.maxOffset = float32(cfg.MaxThresholdOffset)
}

// Threshold produces the binary motion mask for a difference map.
//
// The cut level is computed from the statistics of earlier frames; the
// current map is folded into the statistics afterwards. Pixels strictly
// above the cut level become 255, all others 0.
//
// Arguments:
//   - diff: Single channel 8-bit difference map.
//   - brightness: Mean intensity of the frame the map was computed from.
//
// Returns:
//   - gocv.Mat: The binary mask. The caller must Close it.
//   - float32: The cut level that was applied.
func (a *AdaptiveThresholder) Threshold(diff gocv.Mat, brightness float64) (gocv.Mat, float32) {
	return a.threshold(diff, brightness, true)
}

// ThresholdReinitialized thresholds the difference map of a frame that
// re-initialized the background. The map carries no noise information, so
// only the brightness is folded into the statistics.
func (a *AdaptiveThresholder) ThresholdReinitialized(diff gocv.Mat, brightness float64) (gocv.Mat, float32) {
	return a.threshold(diff, brightness, false)
}

func (a *AdaptiveThresholder) threshold(diff gocv.Mat, brightness float64, observeDiff bool) (gocv.Mat, float32) {
	cut := a.NextCutLevel()
	mask := gocv.NewMat()
	if diff.Empty() {
		return mask, cut
	}
	gocv.Threshold(diff, &mask, cut, 255, gocv.ThresholdBinary)

	a.brightness.observe(brightness)
	if observeDiff {
		mean, variance := intensityStats(diff)
		a.diffMean.observe(mean)
		a.diffVar.observe(variance)
		a.frames++
	}
	a.cut = cut

	return mask, cut
}

// NextCutLevel returns the cut level the next Threshold call will apply.
func (a *AdaptiveThresholder) NextCutLevel() float32 {
	if !a.adaptive || a.frames == 0 {
		return a.base
	}

	brightTerm := a.brightGn * (a.brightness.value - 128) / 128
	noiseTerm := a.noiseGn * (a.diffMean.value + float64(math32.Sqrt(float32(a.diffVar.value))))
	offset := float32(brightTerm + noiseTerm)
	offset = math32.Max(a.minOffset, math32.Min(a.maxOffset, offset))

	return math32.Max(1, math32.Min(254, a.base+offset))
}

// CutLevel is the cut level applied to the most recent difference map.
func (a *AdaptiveThresholder) CutLevel() float32 {
	return a.cut
}

// Stats returns the current scene statistics.
func (a *AdaptiveThresholder) Stats() SceneStats {
	return SceneStats{
		Brightness:   a.brightness.value,
		DiffMean:     a.diffMean.value,
		DiffVariance: a.diffVar.value,
		Frames:       a.frames,
	}
}

// Reset forgets the scene statistics.
func (a *AdaptiveThresholder) Reset() {
	a.brightness = ema{alpha: a.brightness.alpha}
	a.diffMean = ema{alpha: a.diffMean.alpha}
	a.diffVar = ema{alpha: a.diffVar.alpha}
	a.frames = 0
	a.cut = a.base
}
