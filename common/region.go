// Package common - Region geometry shared by the motion pipeline stages.
package common

import (
	"fmt"
	"image"
	"sort"
)

// Region is an axis-aligned bounding box in pixel coordinates.
//
// X and Y are the top-left corner; Width and Height are exclusive extents,
// matching image.Rectangle semantics (Max = Min + size).
type Region struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// RegionFromRect converts an image.Rectangle to a Region.
//
// Arguments:
//   - r: The rectangle to convert, canonicalized before conversion.
//
// Returns:
//   - Region: The equivalent region.
//
// @example
// r := RegionFromRect(image.Rect(10, 10, 70, 40)) // {X:10 Y:10 Width:60 Height:30}
func RegionFromRect(r image.Rectangle) Region {
	r = r.Canon()
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Area is Width*Height.
func (r Region) Area() int {
	return r.Width * r.Height
}

// Valid reports whether the region has a positive width and height.
func (r Region) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Union returns the smallest region covering both r and o.
func (r Region) Union(o Region) Region {
	x1 := min(r.X, o.X)
	y1 := min(r.Y, o.Y)
	x2 := max(r.X+r.Width, o.X+o.Width)
	y2 := max(r.Y+r.Height, o.Y+o.Height)
	return Region{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Translate returns r shifted by (dx, dy).
func (r Region) Translate(dx, dy int) Region {
	r.X += dx
	r.Y += dy
	return r
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d area=%d)", r.X, r.Y, r.Width, r.Height, r.Area())
}

// Near reports whether two regions lie within margin pixels of each other.
//
// The gap between the boxes is measured independently on each axis; boxes are
// near when both gaps are <= margin. Overlapping or touching boxes have a gap of
// zero (or less) and are always near for margin >= 0. This is the single
// proximity predicate used both when merging fragmented regions and when
// matching regions across frames.
//
// Arguments:
//   - a, b: The regions to compare.
//   - margin: Maximum allowed gap in pixels. Negative values are treated as 0.
//
// Returns:
//   - bool: true if the regions are within margin of each other.
//
// @example
// a := Region{X: 0, Y: 0, Width: 60, Height: 60}
// b := Region{X: 70, Y: 0, Width: 60, Height: 60}
// Near(a, b, 20) // true, the gap is 10px
// Near(a, b, 5)  // false
func Near(a, b Region, margin int) bool {
	if margin < 0 {
		margin = 0
	}
	gapX := max(a.X, b.X) - min(a.X+a.Width, b.X+b.Width)
	gapY := max(a.Y, b.Y) - min(a.Y+a.Height, b.Y+b.Height)
	return gapX <= margin && gapY <= margin
}

// SortRegions orders regions by Y, then X, then Width, then Height, in place.
func SortRegions(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		a, b := regions[i], regions[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		return a.Height < b.Height
	})
}

// BoundingRegion returns the union of all regions. ok is false for an empty slice.
func BoundingRegion(regions []Region) (Region, bool) {
	if len(regions) == 0 {
		return Region{}, false
	}
	out := regions[0]
	for _, r := range regions[1:] {
		out = out.Union(r)
	}
	return out, true
}

// IoU is the intersection-over-union of two regions, in [0, 1].
func IoU(a, b Region) float32 {
	ix1 := max(a.X, b.X)
	iy1 := max(a.Y, b.Y)
	ix2 := min(a.X+a.Width, b.X+b.Width)
	iy2 := min(a.Y+a.Height, b.Y+b.Height)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH
	unionArea := a.Area() + b.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return float32(interArea) / float32(unionArea)
}
