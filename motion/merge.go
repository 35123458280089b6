package motion

import "github.com/nvr-ai/go-motion/common"

// RegionMerger joins fragmented detections into unified bounding boxes.
//
// Human silhouettes often split into several blobs (limbs, clothing contrast).
// Every group of regions connected through the common.Near relation is
// replaced by its union box, and the pass repeats until no two boxes are
// within the margin. Grouping is a transitive closure, so the result does
// not depend on input order.
type RegionMerger struct {
	Margin int
}

// Merge returns the fixed point of repeated proximity merging, sorted.
//
// @example
// m := RegionMerger{Margin: 20}
// out := m.Merge([]common.Region{{X: 0, Y: 0, Width: 60, Height: 60}, {X: 70, Y: 0, Width: 60, Height: 60}})
// // out == []common.Region{{X: 0, Y: 0, Width: 130, Height: 60}}
func (m RegionMerger) Merge(regions []common.Region) []common.Region {
	current := make([]common.Region, 0, len(regions))
	for _, r := range regions {
		if r.Valid() {
			current = append(current, r)
		}
	}

	for len(current) > 1 {
		groups := common.Components(current, m.Margin)
		if len(groups) == len(current) {
			break
		}
		next := make([]common.Region, 0, len(groups))
		for _, g := range groups {
			box := current[g[0]]
			for _, idx := range g[1:] {
				box = box.Union(current[idx])
			}
			next = append(next, box)
		}
		current = next
	}

	common.SortRegions(current)
	return current
}
