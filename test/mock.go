// Package test holds deterministic frame fixtures shared by package tests.
package test

import (
	"crypto/md5"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Block is a filled square drawn onto a generated frame.
type Block struct {
	X, Y, Size int
	// Value is the gray level of the block.
	Value uint8
}

// FrameGenerator creates deterministic test frames with controlled motion patterns.
//
// @example
// gen := NewFrameGenerator(640, 480)
// frame := gen.Static()
// defer frame.Close()
type FrameGenerator struct {
	width      int
	height     int
	background uint8
}

// NewFrameGenerator creates a generator for frames of the given size on a
// mid-gray background.
//
// Arguments:
//   - width: Frame width in pixels.
//   - height: Frame height in pixels.
//
// Returns:
//   - *FrameGenerator: A generator with a background level of 128.
func NewFrameGenerator(width, height int) *FrameGenerator {
	return &FrameGenerator{width: width, height: height, background: 128}
}

// WithBackground changes the background gray level.
func (g *FrameGenerator) WithBackground(level uint8) *FrameGenerator {
	g.background = level
	return g
}

// Static creates a uniform single channel frame.
func (g *FrameGenerator) Static() gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC1)
	frame.SetTo(gocv.NewScalar(float64(g.background), 0, 0, 0))
	return frame
}

// StaticBGR creates a uniform three channel frame.
func (g *FrameGenerator) StaticBGR() gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC3)
	v := float64(g.background)
	frame.SetTo(gocv.NewScalar(v, v, v, 0))
	return frame
}

// WithBlocks creates a single channel frame with filled blocks drawn on the background.
//
// @example
// frame := gen.WithBlocks(Block{X: 200, Y: 150, Size: 100, Value: 255})
// defer frame.Close()
func (g *FrameGenerator) WithBlocks(blocks ...Block) gocv.Mat {
	frame := g.Static()
	for _, b := range blocks {
		rect := image.Rect(b.X, b.Y, b.X+b.Size, b.Y+b.Size)
		gocv.Rectangle(&frame, rect, color.RGBA{b.Value, b.Value, b.Value, 0}, -1)
	}
	return frame
}

// Mask creates a binary mask with the given rectangles set to 255.
func (g *FrameGenerator) Mask(rects ...image.Rectangle) gocv.Mat {
	mask := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC1)
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for _, r := range rects {
		gocv.Rectangle(&mask, r, color.RGBA{255, 255, 255, 0}, -1)
	}
	return mask
}

// Checksum returns a hex MD5 digest of the Mat's pixels.
func Checksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}
	data := mat.ToBytes()
	return fmt.Sprintf("%x", md5.Sum(data))
}

// CountNonZero counts foreground pixels of a single channel Mat.
func CountNonZero(mat gocv.Mat) int {
	if mat.Empty() {
		return 0
	}
	return gocv.CountNonZero(mat)
}
