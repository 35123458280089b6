package motion

import "github.com/nvr-ai/go-motion/common"

// Classifier labels confirmed regions by area alone.
type Classifier struct {
	MinHumanArea int
}

// Classify returns LabelHuman when the region's area is at least MinHumanArea.
func (c Classifier) Classify(r common.Region) common.Label {
	if r.Area() >= c.MinHumanArea {
		return common.LabelHuman
	}
	return common.LabelMotion
}

// ClassifyAll labels each region, preserving order.
func (c Classifier) ClassifyAll(regions []common.Region) []common.ClassifiedRegion {
	out := make([]common.ClassifiedRegion, 0, len(regions))
	for _, r := range regions {
		out = append(out, common.ClassifiedRegion{Region: r, Label: c.Classify(r)})
	}
	return out
}
