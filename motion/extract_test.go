package motion

import (
	"image"
	"testing"

	"github.com/nvr-ai/go-motion/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestRegionExtractor_SingleBlob(t *testing.T) {
	e := NewRegionExtractor(500, 0, 0)
	defer e.Close()

	mask := test.NewFrameGenerator(320, 240).Mask(image.Rect(100, 50, 160, 110))
	defer mask.Close()

	regions := e.Extract(mask)
	require.Len(t, regions, 1)
	assert.InDelta(t, 100, regions[0].X, 1)
	assert.InDelta(t, 50, regions[0].Y, 1)
	assert.InDelta(t, 60, regions[0].Width, 1)
	assert.InDelta(t, 60, regions[0].Height, 1)
}

func TestRegionExtractor_MorphologyGrowsBlob(t *testing.T) {
	plain := NewRegionExtractor(500, 0, 0)
	defer plain.Close()
	morph := NewRegionExtractor(500, 0, 5)
	defer morph.Close()

	mask := test.NewFrameGenerator(320, 240).Mask(image.Rect(100, 50, 160, 110))
	defer mask.Close()

	a := plain.Extract(mask)
	b := morph.Extract(mask)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Greater(t, b[0].Area(), a[0].Area())
	assert.InDelta(t, a[0].Width+4, b[0].Width, 1)
}

func TestRegionExtractor_MorphologyRemovesSpeckles(t *testing.T) {
	e := NewRegionExtractor(1, 0, 5)
	defer e.Close()

	gen := test.NewFrameGenerator(320, 240)
	mask := gen.Mask(image.Rect(10, 10, 12, 12), image.Rect(200, 200, 202, 202))
	defer mask.Close()

	assert.Empty(t, e.Extract(mask))
}

func TestRegionExtractor_AreaBounds(t *testing.T) {
	gen := test.NewFrameGenerator(640, 480)
	mask := gen.Mask(
		image.Rect(10, 10, 20, 20),    // ~100 px
		image.Rect(100, 100, 150, 150), // ~2500 px
		image.Rect(300, 50, 600, 450),  // ~120000 px
	)
	defer mask.Close()

	e := NewRegionExtractor(500, 50000, 0)
	defer e.Close()
	regions := e.Extract(mask)
	require.Len(t, regions, 1)
	assert.InDelta(t, 100, regions[0].X, 1)

	unbounded := NewRegionExtractor(500, 0, 0)
	defer unbounded.Close()
	assert.Len(t, unbounded.Extract(mask), 2)
}

func TestRegionExtractor_SortedAndDeterministic(t *testing.T) {
	gen := test.NewFrameGenerator(640, 480)
	mask := gen.Mask(
		image.Rect(400, 300, 460, 360),
		image.Rect(50, 300, 110, 360),
		image.Rect(200, 40, 260, 100),
	)
	defer mask.Close()
	before := test.Checksum(mask)

	e := NewRegionExtractor(500, 0, 3)
	defer e.Close()

	first := e.Extract(mask)
	second := e.Extract(mask)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Less(t, first[0].Y, first[1].Y)
	assert.Less(t, first[1].X, first[2].X)
	assert.Equal(t, before, test.Checksum(mask), "mask is not modified")
}

func TestRegionExtractor_EmptyMask(t *testing.T) {
	e := NewRegionExtractor(500, 0, 5)
	defer e.Close()

	assert.Nil(t, e.Extract(gocv.NewMat()))

	blank := test.NewFrameGenerator(64, 48).Mask()
	defer blank.Close()
	assert.Empty(t, e.Extract(blank))
}
