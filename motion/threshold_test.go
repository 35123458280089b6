package motion

import (
	"testing"

	"github.com/nvr-ai/go-motion/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func uniformDiff(value float64) gocv.Mat {
	m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(value, 0, 0, 0))
	return m
}

func TestAdaptiveThresholder_FixedCutLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptiveThreshold = false
	a := NewAdaptiveThresholder(cfg)

	above := uniformDiff(26)
	defer above.Close()
	at := uniformDiff(25)
	defer at.Close()

	for i := 0; i < 5; i++ {
		mask, cut := a.Threshold(above, 255)
		assert.Equal(t, float32(25), cut)
		assert.Equal(t, 48*64, test.CountNonZero(mask), "pixels above the cut are foreground")
		mask.Close()

		mask, _ = a.Threshold(at, 0)
		assert.Equal(t, 0, test.CountNonZero(mask), "pixels equal to the cut are background")
		mask.Close()
	}
	assert.Equal(t, float32(25), a.NextCutLevel())
}

func TestAdaptiveThresholder_FixedMatchesPlainThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptiveThreshold = false
	a := NewAdaptiveThresholder(cfg)

	gen := test.NewFrameGenerator(160, 120).WithBackground(10)
	diff := gen.WithBlocks(test.Block{X: 20, Y: 20, Size: 30, Value: 40}, test.Block{X: 90, Y: 60, Size: 20, Value: 25})
	defer diff.Close()

	want := gocv.NewMat()
	defer want.Close()
	gocv.Threshold(diff, &want, 25, 255, gocv.ThresholdBinary)

	for i := 0; i < 3; i++ {
		got, _ := a.Threshold(diff, 128)
		assert.Equal(t, test.Checksum(want), test.Checksum(got))
		got.Close()
	}
}

func TestAdaptiveThresholder_FirstFrameUsesBase(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	diff := uniformDiff(100)
	defer diff.Close()

	mask, cut := a.Threshold(diff, 255)
	defer mask.Close()
	assert.Equal(t, float32(25), cut)
	assert.Equal(t, 1, a.Stats().Frames)
}

func TestAdaptiveThresholder_BrightNoisySceneRaisesCut(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	diff := uniformDiff(100)
	defer diff.Close()

	mask, _ := a.Threshold(diff, 255)
	mask.Close()

	// Offset saturates at the configured maximum of 20.
	assert.InDelta(t, 45, a.NextCutLevel(), 1e-4)

	stats := a.Stats()
	assert.InDelta(t, 255, stats.Brightness, 1e-9)
	assert.InDelta(t, 100, stats.DiffMean, 1e-9)
	assert.InDelta(t, 0, stats.DiffVariance, 1e-9)
}

func TestAdaptiveThresholder_DarkQuietSceneLowersCut(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	diff := uniformDiff(0)
	defer diff.Close()

	mask, _ := a.Threshold(diff, 0)
	mask.Close()

	// brightness term = 10 * (0 - 128) / 128 = -10, noise term = 0.
	assert.InDelta(t, 15, a.NextCutLevel(), 1e-4)
}

func TestAdaptiveThresholder_CutLevelClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MotionThreshold = 250
	a := NewAdaptiveThresholder(cfg)
	diff := uniformDiff(200)
	defer diff.Close()

	mask, _ := a.Threshold(diff, 255)
	mask.Close()
	assert.Equal(t, float32(254), a.NextCutLevel())

	cfg.MotionThreshold = 2
	cfg.MinThresholdOffset = -20
	low := NewAdaptiveThresholder(cfg)
	quiet := uniformDiff(0)
	defer quiet.Close()
	mask, _ = low.Threshold(quiet, 0)
	mask.Close()
	assert.Equal(t, float32(1), low.NextCutLevel())
}

func TestAdaptiveThresholder_Reset(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	diff := uniformDiff(100)
	defer diff.Close()

	for i := 0; i < 3; i++ {
		mask, _ := a.Threshold(diff, 200)
		mask.Close()
	}
	require.NotEqual(t, float32(25), a.NextCutLevel())

	a.Reset()
	assert.Equal(t, float32(25), a.NextCutLevel())
	assert.Equal(t, SceneStats{}, a.Stats())
}

func TestAdaptiveThresholder_EmptyDiff(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	mask, cut := a.Threshold(gocv.NewMat(), 128)
	defer mask.Close()
	assert.True(t, mask.Empty())
	assert.Equal(t, float32(25), cut)
	assert.Equal(t, 0, a.Stats().Frames)
}

func TestAdaptiveThresholder_ReinitializedFrameKeepsNoiseEstimate(t *testing.T) {
	a := NewAdaptiveThresholder(DefaultConfig())
	noisy := uniformDiff(30)
	defer noisy.Close()
	zero := uniformDiff(0)
	defer zero.Close()

	for i := 0; i < 3; i++ {
		mask, _ := a.Threshold(noisy, 128)
		mask.Close()
	}
	before := a.Stats()
	cutBefore := a.NextCutLevel()

	mask, cut := a.ThresholdReinitialized(zero, 128)
	defer mask.Close()
	assert.Equal(t, cutBefore, cut)
	assert.Zero(t, test.CountNonZero(mask))

	after := a.Stats()
	assert.Equal(t, before.Frames, after.Frames)
	assert.Equal(t, before.DiffMean, after.DiffMean)
	assert.Equal(t, before.DiffVariance, after.DiffVariance)
	assert.Equal(t, cutBefore, a.NextCutLevel())
}
