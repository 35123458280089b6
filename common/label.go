package common

import "image/color"

// Label is the size class assigned to a confirmed region.
type Label int

const (
	// LabelMotion is any confirmed region smaller than the human-size cutoff.
	LabelMotion Label = iota
	// LabelHuman is a confirmed region at least as large as the human-size cutoff.
	LabelHuman
)

func (l Label) String() string {
	switch l {
	case LabelHuman:
		return "human"
	default:
		return "motion"
	}
}

// Color is the box color used when annotating frames: red for humans, green otherwise.
func (l Label) Color() color.RGBA {
	switch l {
	case LabelHuman:
		return color.RGBA{255, 0, 0, 0}
	default:
		return color.RGBA{0, 255, 0, 0}
	}
}

// ClassifiedRegion is a confirmed region with its label.
type ClassifiedRegion struct {
	Region
	Label Label `json:"label" yaml:"label"`
}

func (c ClassifiedRegion) String() string {
	return c.Label.String() + " " + c.Region.String()
}

// ParseLabel is the inverse of Label.String. Unknown names map to LabelMotion.
func ParseLabel(s string) Label {
	if s == "human" {
		return LabelHuman
	}
	return LabelMotion
}
