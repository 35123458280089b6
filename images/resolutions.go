// Package images provides camera resolution presets and still image decoding.
package images

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// AspectRatio represents a CCTV aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Defines standard and common aspect ratios for surveillance cameras.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio54  AspectRatio = "5:4"
	AspectRatio32  AspectRatio = "3:2"
)

// Pixels describes the exact dimensions of a resolution.
type Pixels struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Resolution describes a capture resolution preset.
type Resolution struct {
	// Alias is the short name accepted in configuration, e.g. "720p".
	Alias       string      `json:"alias"`
	Name        string      `json:"name"`
	AspectRatio AspectRatio `json:"aspectRatio"`
	Pixels      Pixels      `json:"pixels"`
}

// MegaPixels calculates the megapixel value based on the resolution's pixel dimensions.
// It returns the value rounded to two decimal places (e.g., 2.07 for 1080p).
func (r Resolution) MegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.MegaPixels())
}

// resolutions holds the presets keyed by lower-case alias.
var resolutions = map[string]Resolution{
	"qvga":  {Alias: "qvga", Name: "QVGA", AspectRatio: AspectRatio43, Pixels: Pixels{320, 240}},
	"360p":  {Alias: "360p", Name: "nHD", AspectRatio: AspectRatio169, Pixels: Pixels{640, 360}},
	"vga":   {Alias: "vga", Name: "VGA", AspectRatio: AspectRatio43, Pixels: Pixels{640, 480}},
	"480p":  {Alias: "480p", Name: "FWVGA", AspectRatio: AspectRatio169, Pixels: Pixels{854, 480}},
	"svga":  {Alias: "svga", Name: "SVGA", AspectRatio: AspectRatio43, Pixels: Pixels{800, 600}},
	"540p":  {Alias: "540p", Name: "qHD 540p", AspectRatio: AspectRatio169, Pixels: Pixels{960, 540}},
	"720p":  {Alias: "720p", Name: "HD 720p", AspectRatio: AspectRatio169, Pixels: Pixels{1280, 720}},
	"1mp":   {Alias: "1mp", Name: "1MP (5:4)", AspectRatio: AspectRatio54, Pixels: Pixels{1280, 1024}},
	"1080p": {Alias: "1080p", Name: "Full HD 1080p", AspectRatio: AspectRatio169, Pixels: Pixels{1920, 1080}},
	"2mp":   {Alias: "2mp", Name: "2MP (4:3)", AspectRatio: AspectRatio43, Pixels: Pixels{1600, 1200}},
	"1440p": {Alias: "1440p", Name: "QHD 1440p", AspectRatio: AspectRatio169, Pixels: Pixels{2560, 1440}},
	"3mp":   {Alias: "3mp", Name: "3MP (4:3)", AspectRatio: AspectRatio43, Pixels: Pixels{2048, 1536}},
	"4mp":   {Alias: "4mp", Name: "4MP (16:9)", AspectRatio: AspectRatio169, Pixels: Pixels{2688, 1520}},
	"6mp":   {Alias: "6mp", Name: "6MP (3:2)", AspectRatio: AspectRatio32, Pixels: Pixels{3072, 2048}},
	"4k":    {Alias: "4k", Name: "4K UHD", AspectRatio: AspectRatio169, Pixels: Pixels{3840, 2160}},
}

// Lookup returns the preset for alias, case-insensitively.
//
// Arguments:
//   - alias: A preset alias such as "vga", "720p" or "4k".
//
// Returns:
//   - Resolution: The preset.
//   - bool: False when alias is unknown.
//
// @example
// res, ok := images.Lookup("720p") // 1280x720
func Lookup(alias string) (Resolution, bool) {
	res, ok := resolutions[strings.ToLower(strings.TrimSpace(alias))]
	return res, ok
}

// All returns every preset ordered by pixel count, then width.
func All() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].Pixels, all[j].Pixels
		if a.Width*a.Height != b.Width*b.Height {
			return a.Width*a.Height < b.Width*b.Height
		}
		return a.Width < b.Width
	})
	return all
}

// Aliases returns the accepted preset aliases in the order of All.
func Aliases() []string {
	all := All()
	out := make([]string, len(all))
	for i, res := range all {
		out[i] = res.Alias
	}
	return out
}

// HighestUnder returns the largest preset that fits within width x height.
//
// Arguments:
//   - width: The maximum possible width of the image.
//   - height: The maximum possible height of the image.
//
// Returns:
//   - Resolution: The largest fitting preset.
//   - bool: True if a resolution was found, otherwise false.
func HighestUnder(width, height int) (Resolution, bool) {
	var (
		highest Resolution
		found   bool
	)
	for _, res := range All() {
		if res.Pixels.Width <= width && res.Pixels.Height <= height {
			highest, found = res, true
		}
	}
	return highest, found
}
