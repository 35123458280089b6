// Package motion implements the frame-analysis pipeline: background modeling,
// adaptive thresholding, region extraction and merging, temporal persistence
// filtering and human-size classification.
//
// Pipeline Overview:
//
//	┌──────────────┐
//	│ Input Frame  │
//	└──────┬───────┘
//	┌──────────────────────────────────────────┐
//	│ BackgroundModel (gray, blur, abs diff)   │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ AdaptiveThresholder (binary motion mask) │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ RegionExtractor (morphology, contours)   │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ RegionMerger (union-find over proximity) │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ PersistenceFilter (N consecutive frames) │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ Classifier (motion / human by area)      │
//	└──────┬───────────────────────────────────┘
//	┌──────────────────────────────────────────┐
//	│ Report (regions + annotated frame)       │
//	└──────────────────────────────────────────┘
//
// A Detector owns all cross-frame state, so independent cameras each get their
// own Detector. Mats returned in a Report must be released with Report.Close().
package motion

import (
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid motion configuration")

// Config contains the tuning parameters of the motion pipeline.
type Config struct {
	// MotionThreshold is the base difference cut level (0-255).
	MotionThreshold float64 `yaml:"motion_threshold" json:"motion_threshold"`
	// MinContourArea is the minimum bounding-box area of an extracted region.
	MinContourArea int `yaml:"min_contour_area" json:"min_contour_area"`
	// MaxContourArea discards regions larger than this (camera shake). 0 disables.
	MaxContourArea int `yaml:"max_contour_area" json:"max_contour_area"`
	// MinHumanArea is the area at or above which a region is labeled human.
	MinHumanArea int `yaml:"min_human_area" json:"min_human_area"`
	// GaussianBlurSize is the smoothing kernel size, must be odd. <= 1 disables.
	GaussianBlurSize int `yaml:"gaussian_blur_size" json:"gaussian_blur_size"`
	// MorphologyKernelSize is the open/close/dilate kernel size. 0 disables.
	MorphologyKernelSize int `yaml:"morphology_kernel_size" json:"morphology_kernel_size"`
	// PersistenceFrames is how many consecutive frames a region must match before it is confirmed.
	PersistenceFrames int `yaml:"motion_persistence_frames" json:"motion_persistence_frames"`
	// AdaptiveThreshold toggles adaptive cut levels; when false MotionThreshold is used as is.
	AdaptiveThreshold bool `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	// BackgroundLearningRate is the fraction of each frame blended into the background.
	BackgroundLearningRate float64 `yaml:"background_learning_rate" json:"background_learning_rate"`
	// MergeMargin is the proximity, in pixels, under which regions are merged.
	MergeMargin int `yaml:"merge_margin" json:"merge_margin"`
	// PersistenceMargin is the proximity used to match regions across frames.
	PersistenceMargin int `yaml:"persistence_margin" json:"persistence_margin"`
	// PersistenceMaxMisses evicts tracked entries after this many frames without a match.
	PersistenceMaxMisses int `yaml:"persistence_max_misses" json:"persistence_max_misses"`
	// StatsWindow is the effective window, in frames, of the scene statistics.
	StatsWindow int `yaml:"stats_window" json:"stats_window"`
	// BrightnessGain scales the brightness term of the adaptive cut level.
	BrightnessGain float64 `yaml:"brightness_gain" json:"brightness_gain"`
	// NoiseGain scales the noise term of the adaptive cut level.
	NoiseGain float64 `yaml:"noise_gain" json:"noise_gain"`
	// MinThresholdOffset and MaxThresholdOffset bound the adaptive adjustment.
	MinThresholdOffset float64 `yaml:"min_threshold_offset" json:"min_threshold_offset"`
	MaxThresholdOffset float64 `yaml:"max_threshold_offset" json:"max_threshold_offset"`
	// AutoResetInterval periodically re-initializes the background. 0 disables.
	AutoResetInterval time.Duration `yaml:"auto_reset_interval" json:"auto_reset_interval"`
	// LightingShiftReset resets the background when mean brightness jumps by more
	// than this between consecutive frames. 0 disables.
	LightingShiftReset float64 `yaml:"lighting_shift_reset" json:"lighting_shift_reset"`
	// Annotate draws boxes and the text overlay on a copy of each frame.
	Annotate bool `yaml:"annotate" json:"annotate"`
}

// DefaultConfig returns the default motion pipeline configuration.
//
// Returns:
//   - Config: Defaults tuned for a 640x480 network camera.
//
// @example
// cfg := DefaultConfig()
// cfg.PersistenceFrames = 2
// detector := NewDetector(cfg, WithLogger(logger))
func DefaultConfig() Config {
	return Config{
		MotionThreshold:        25,
		MinContourArea:         500,
		MaxContourArea:         50000,
		MinHumanArea:           5000,
		GaussianBlurSize:       21,
		MorphologyKernelSize:   5,
		PersistenceFrames:      3,
		AdaptiveThreshold:      true,
		BackgroundLearningRate: 0.02,
		MergeMargin:            20,
		PersistenceMargin:      20,
		PersistenceMaxMisses:   5,
		StatsWindow:            30,
		BrightnessGain:         10,
		NoiseGain:              0.5,
		MinThresholdOffset:     -10,
		MaxThresholdOffset:     20,
		LightingShiftReset:     60,
		Annotate:               true,
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MotionThreshold < 0 || c.MotionThreshold > 255:
		return errors.Wrapf(ErrInvalidConfig, "motion_threshold %v outside [0, 255]", c.MotionThreshold)
	case c.MinContourArea < 1:
		return errors.Wrapf(ErrInvalidConfig, "min_contour_area %d must be positive", c.MinContourArea)
	case c.MaxContourArea != 0 && c.MaxContourArea < c.MinContourArea:
		return errors.Wrapf(ErrInvalidConfig, "max_contour_area %d below min_contour_area %d", c.MaxContourArea, c.MinContourArea)
	case c.MinHumanArea < c.MinContourArea:
		return errors.Wrapf(ErrInvalidConfig, "min_human_area %d below min_contour_area %d", c.MinHumanArea, c.MinContourArea)
	case c.GaussianBlurSize < 0 || (c.GaussianBlurSize > 1 && c.GaussianBlurSize%2 == 0):
		return errors.Wrapf(ErrInvalidConfig, "gaussian_blur_size %d must be odd", c.GaussianBlurSize)
	case c.MorphologyKernelSize < 0:
		return errors.Wrapf(ErrInvalidConfig, "morphology_kernel_size %d is negative", c.MorphologyKernelSize)
	case c.PersistenceFrames < 1:
		return errors.Wrapf(ErrInvalidConfig, "motion_persistence_frames %d must be at least 1", c.PersistenceFrames)
	case c.BackgroundLearningRate <= 0 || c.BackgroundLearningRate > 1:
		return errors.Wrapf(ErrInvalidConfig, "background_learning_rate %v outside (0, 1]", c.BackgroundLearningRate)
	case c.MergeMargin < 0 || c.PersistenceMargin < 0:
		return errors.Wrap(ErrInvalidConfig, "merge and persistence margins must not be negative")
	case c.PersistenceMaxMisses < 0:
		return errors.Wrapf(ErrInvalidConfig, "persistence_max_misses %d is negative", c.PersistenceMaxMisses)
	case c.StatsWindow < 1:
		return errors.Wrapf(ErrInvalidConfig, "stats_window %d must be at least 1", c.StatsWindow)
	case c.MinThresholdOffset > c.MaxThresholdOffset:
		return errors.Wrap(ErrInvalidConfig, "min_threshold_offset exceeds max_threshold_offset")
	case c.AutoResetInterval < 0 || c.LightingShiftReset < 0:
		return errors.Wrap(ErrInvalidConfig, "reset triggers must not be negative")
	}
	return nil
}
