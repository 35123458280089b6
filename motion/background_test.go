package motion

import (
	"testing"

	"github.com/nvr-ai/go-motion/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestBackgroundModel_FirstFrameInitializes(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	frame := test.NewFrameGenerator(320, 240).WithBlocks(test.Block{X: 50, Y: 50, Size: 40, Value: 255})
	defer frame.Close()

	diff, err := bg.Update(frame)
	require.NoError(t, err)
	defer diff.Close()

	assert.True(t, bg.Reinitialized())
	assert.Equal(t, 240, diff.Rows())
	assert.Equal(t, 320, diff.Cols())
	assert.Equal(t, 1, diff.Channels())
	assert.Equal(t, 0, test.CountNonZero(diff), "first frame yields an all-zero difference map")
}

func TestBackgroundModel_StaticSceneHasNoDifference(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	gen := test.NewFrameGenerator(320, 240)
	for i := 0; i < 5; i++ {
		frame := gen.Static()
		diff, err := bg.Update(frame)
		require.NoError(t, err)
		assert.Equal(t, 0, test.CountNonZero(diff))
		assert.InDelta(t, 128, bg.Brightness(), 0.5)
		diff.Close()
		frame.Close()
	}
	assert.False(t, bg.Reinitialized())
}

func TestBackgroundModel_ChangedAreaShowsInDifference(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	gen := test.NewFrameGenerator(320, 240)
	static := gen.Static()
	defer static.Close()
	moving := gen.WithBlocks(test.Block{X: 100, Y: 80, Size: 60, Value: 255})
	defer moving.Close()

	diff, err := bg.Update(static)
	require.NoError(t, err)
	diff.Close()

	diff, err = bg.Update(moving)
	require.NoError(t, err)
	defer diff.Close()

	assert.Greater(t, test.CountNonZero(diff), 0)
	// Centre of the block differs by the full contrast; far corner does not.
	assert.InDelta(t, 127, int(diff.GetUCharAt(110, 130)), 2)
	assert.Equal(t, uint8(0), diff.GetUCharAt(5, 5))
}

func TestBackgroundModel_AcceptsColorFrames(t *testing.T) {
	bg := NewBackgroundModel(5, 0.5)
	defer bg.Close()

	frame := test.NewFrameGenerator(64, 48).StaticBGR()
	defer frame.Close()

	diff, err := bg.Update(frame)
	require.NoError(t, err)
	defer diff.Close()
	assert.Equal(t, 1, diff.Channels())
	assert.InDelta(t, 128, bg.Brightness(), 1)
}

func TestBackgroundModel_EmptyFrame(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	empty := gocv.NewMat()
	defer empty.Close()

	diff, err := bg.Update(empty)
	defer diff.Close()
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestBackgroundModel_ResetAndResize(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	small := test.NewFrameGenerator(64, 48).Static()
	defer small.Close()
	large := test.NewFrameGenerator(128, 96).Static()
	defer large.Close()

	diff, _ := bg.Update(small)
	diff.Close()
	diff, _ = bg.Update(small)
	diff.Close()
	require.False(t, bg.Reinitialized())

	bg.Reset()
	diff, _ = bg.Update(small)
	diff.Close()
	assert.True(t, bg.Reinitialized(), "reset re-initializes on the next frame")

	diff, _ = bg.Update(large)
	defer diff.Close()
	assert.True(t, bg.Reinitialized(), "size change re-initializes")
	assert.Equal(t, 96, diff.Rows())
}

func TestBackgroundModel_BlurSizeChangeResets(t *testing.T) {
	bg := NewBackgroundModel(21, 0.02)
	defer bg.Close()

	frame := test.NewFrameGenerator(64, 48).Static()
	defer frame.Close()

	diff, _ := bg.Update(frame)
	diff.Close()

	bg.SetBlurSize(21)
	diff, _ = bg.Update(frame)
	diff.Close()
	assert.False(t, bg.Reinitialized())

	bg.SetBlurSize(11)
	diff, _ = bg.Update(frame)
	diff.Close()
	assert.True(t, bg.Reinitialized())
}

func TestNormalizeKernel(t *testing.T) {
	assert.Equal(t, 0, normalizeKernel(0))
	assert.Equal(t, 0, normalizeKernel(1))
	assert.Equal(t, 3, normalizeKernel(2))
	assert.Equal(t, 21, normalizeKernel(21))
}
