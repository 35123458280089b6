package motion

import (
	"image"

	"github.com/nvr-ai/go-motion/common"
	"gocv.io/x/gocv"
)

// RegionExtractor turns a binary motion mask into bounding-box regions.
//
// The mask is optionally cleaned with morphology (opening removes speckles,
// closing fills holes, dilation connects nearby blobs) before the external
// contours are extracted. Regions outside [minArea, maxArea] are discarded.
type RegionExtractor struct {
	minArea int
	maxArea int
	// kernel is the morphological structuring element. Empty disables morphology.
	kernel gocv.Mat
}

// NewRegionExtractor creates an extractor.
//
// Arguments:
//   - minArea: Minimum bounding-box area of an accepted region.
//   - maxArea: Maximum bounding-box area of an accepted region, 0 for no limit.
//   - morphologySize: Rect kernel size for open/close/dilate, 0 disables morphology.
//
// Returns:
//   - *RegionExtractor: The extractor. Call Close to release the kernel.
func NewRegionExtractor(minArea, maxArea, morphologySize int) *RegionExtractor {
	e := &RegionExtractor{minArea: minArea, maxArea: maxArea, kernel: gocv.NewMat()}
	e.setKernel(morphologySize)
	return e
}

func (e *RegionExtractor) setKernel(size int) {
	e.kernel.Close()
	if size > 0 {
		e.kernel = gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
		return
	}
	e.kernel = gocv.NewMat()
}

// Extract returns the bounding boxes of the connected foreground regions in mask.
//
// The mask is not modified. Output is sorted by (Y, X, Width, Height) so that
// identical masks always give identical slices.
//
// Arguments:
//   - mask: Binary single channel 8-bit mask.
//
// Returns:
//   - []common.Region: Accepted regions, empty when the mask has no foreground.
func (e *RegionExtractor) Extract(mask gocv.Mat) []common.Region {
	if mask.Empty() {
		return nil
	}

	work := mask.Clone()
	defer work.Close()

	if !e.kernel.Empty() {
		gocv.MorphologyEx(work, &work, gocv.MorphOpen, e.kernel)
		gocv.MorphologyEx(work, &work, gocv.MorphClose, e.kernel)
		gocv.Dilate(work, &work, e.kernel)
	}

	contours := gocv.FindContours(work, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]common.Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		r := common.RegionFromRect(gocv.BoundingRect(contours.At(i)))
		if e.accept(r) {
			regions = append(regions, r)
		}
	}

	common.SortRegions(regions)
	return regions
}

func (e *RegionExtractor) accept(r common.Region) bool {
	if !r.Valid() || r.Area() < e.minArea {
		return false
	}
	return e.maxArea <= 0 || r.Area() <= e.maxArea
}

// Close releases the morphology kernel.
func (e *RegionExtractor) Close() {
	e.kernel.Close()
}
