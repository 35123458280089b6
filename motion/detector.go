package motion

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// StageTimer times named pipeline stages. StartOperation returns the function
// that stops the timer.
type StageTimer interface {
	StartOperation(name string) func()
}

type noopTimer struct{}

func (noopTimer) StartOperation(string) func() { return func() {} }

// Stats are running totals kept by a Detector.
type Stats struct {
	FramesProcessed  uint64
	VerifiedFrames   uint64
	HumanDetections  uint64
	MotionDetections uint64
	BackgroundResets uint64
	// AverageFrameDiff is the mean difference-map intensity of the last frame.
	AverageFrameDiff float64
	// LightingBaseline is the mean intensity of the last frame.
	LightingBaseline float64
	CutLevel         float32
}

// DetectionRate is the percentage of processed frames with confirmed regions.
func (s Stats) DetectionRate() float64 {
	if s.FramesProcessed == 0 {
		return 0
	}
	return float64(s.VerifiedFrames) / float64(s.FramesProcessed) * 100
}

// Detector is one camera's motion pipeline.
//
// All cross-frame state (background reference, scene statistics, persistence
// counters) lives here. Process runs a whole frame under the detector's lock;
// Reset, RequestSave, SetShowThreshold and UpdateConfig take the same lock, so
// control signals always land between frames.
type Detector struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger
	timer  StageTimer

	background  *BackgroundModel
	thresholder *AdaptiveThresholder
	extractor   *RegionExtractor
	merger      RegionMerger
	persistence *PersistenceFilter
	classifier  Classifier
	annotator   Annotator

	processed      uint64
	saveRequested  bool
	resetRequested bool
	showThreshold  bool
	lastReset      time.Time
	lastBrightness float64
	hasBrightness  bool
	stats          Stats
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithStageTimer records per-stage timings.
func WithStageTimer(timer StageTimer) Option {
	return func(d *Detector) {
		if timer != nil {
			d.timer = timer
		}
	}
}

// WithAnnotator replaces the default annotator.
func WithAnnotator(a Annotator) Option {
	return func(d *Detector) {
		d.annotator = a
	}
}

// NewDetector creates a motion pipeline.
//
// The configuration is expected to be valid (see Config.Validate); it is not
// re-checked per frame.
//
// Arguments:
//   - config: Pipeline tuning parameters.
//   - opts: Optional logger, stage timer and annotator.
//
// Returns:
//   - *Detector: The pipeline. Call Close to release native resources.
//
// @example
// d := NewDetector(DefaultConfig(), WithLogger(logger))
// defer d.Close()
// report := d.Process(frame)
// defer report.Close()
func NewDetector(config Config, opts ...Option) *Detector {
	d := &Detector{
		config:      config,
		logger:      zap.NewNop(),
		timer:       noopTimer{},
		background:  NewBackgroundModel(config.GaussianBlurSize, config.BackgroundLearningRate),
		thresholder: NewAdaptiveThresholder(config),
		extractor:   NewRegionExtractor(config.MinContourArea, config.MaxContourArea, config.MorphologyKernelSize),
		merger:      RegionMerger{Margin: config.MergeMargin},
		persistence: NewPersistenceFilter(config.PersistenceFrames, config.PersistenceMargin, config.PersistenceMaxMisses),
		classifier:  Classifier{MinHumanArea: config.MinHumanArea},
		annotator:   DefaultAnnotator(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process runs one frame through the whole pipeline.
//
// It never fails: an unusable frame yields a report without regions and with
// Anomaly set.
//
// Arguments:
//   - frame: The frame to analyze. It is not retained.
//
// Returns:
//   - *Report: The detection report. The caller must Close it.
func (d *Detector) Process(frame Frame) *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	stopFrame := d.timer.StartOperation("frame")
	defer stopFrame()

	d.processed++
	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	report := &Report{
		FrameIndex: frame.Index,
		Timestamp:  now,
		Frame:      gocv.NewMat(),
		Mask:       gocv.NewMat(),
		ManualSave: d.saveRequested,
	}
	d.saveRequested = false

	if d.resetRequested || d.autoResetDue(now) {
		d.resetLocked(now)
		report.BackgroundReset = true
	}

	stop := d.timer.StartOperation("background")
	diff, err := d.background.Update(frame.Mat)
	stop()
	if err != nil {
		diff.Close()
		d.logger.Warn("frame skipped", zap.Uint64("frame", frame.Index), zap.Error(err))
		report.Anomaly = err
		d.stats.FramesProcessed++
		return report
	}
	defer func() { diff.Close() }()

	brightness := d.background.Brightness()
	if d.lightingShifted(brightness) {
		d.logger.Info("lighting shift, resetting background",
			zap.Float64("previous", d.lastBrightness), zap.Float64("current", brightness))
		d.resetLocked(now)
		report.BackgroundReset = true
		diff.Close()
		diff, _ = d.background.Update(frame.Mat)
	}
	if d.background.Reinitialized() {
		report.BackgroundReset = true
	}
	d.lastBrightness, d.hasBrightness = brightness, true

	stop = d.timer.StartOperation("threshold")
	var (
		mask gocv.Mat
		cut  float32
	)
	if d.background.Reinitialized() {
		mask, cut = d.thresholder.ThresholdReinitialized(diff, brightness)
	} else {
		mask, cut = d.thresholder.Threshold(diff, brightness)
	}
	stop()

	stop = d.timer.StartOperation("extract")
	raw := d.extractor.Extract(mask)
	stop()

	if d.showThreshold {
		report.Mask.Close()
		report.Mask = mask
	} else {
		mask.Close()
	}

	stop = d.timer.StartOperation("merge")
	merged := d.merger.Merge(raw)
	stop()

	stop = d.timer.StartOperation("persistence")
	confirmed := d.persistence.Confirm(merged, d.processed)
	stop()

	report.Regions = d.classifier.ClassifyAll(confirmed)
	report.CutLevel = cut
	report.Stats = d.thresholder.Stats()

	report.Frame.Close()
	if d.config.Annotate {
		stop = d.timer.StartOperation("annotate")
		report.Frame = d.annotator.Annotate(frame.Mat, report)
		stop()
	} else {
		report.Frame = frame.Mat.Clone()
	}

	d.record(report, brightness)

	if len(raw) > 0 || report.HasDetections() {
		d.logger.Debug("frame analyzed",
			zap.Uint64("frame", frame.Index),
			zap.Int("raw", len(raw)),
			zap.Int("merged", len(merged)),
			zap.Int("confirmed", len(report.Regions)),
			zap.Float32("cut", cut))
	}

	return report
}

func (d *Detector) record(report *Report, brightness float64) {
	d.stats.FramesProcessed++
	if report.HasDetections() {
		d.stats.VerifiedFrames++
	}
	humans := report.HumanCount()
	d.stats.HumanDetections += uint64(humans)
	d.stats.MotionDetections += uint64(len(report.Regions) - humans)
	d.stats.AverageFrameDiff = report.Stats.DiffMean
	d.stats.LightingBaseline = brightness
	d.stats.CutLevel = report.CutLevel
}

func (d *Detector) autoResetDue(now time.Time) bool {
	if d.config.AutoResetInterval <= 0 {
		return false
	}
	if d.lastReset.IsZero() {
		d.lastReset = now
		return false
	}
	return now.Sub(d.lastReset) > d.config.AutoResetInterval
}

func (d *Detector) lightingShifted(brightness float64) bool {
	if d.config.LightingShiftReset <= 0 || !d.hasBrightness || d.background.Reinitialized() {
		return false
	}
	return math.Abs(brightness-d.lastBrightness) > d.config.LightingShiftReset
}

// resetLocked clears the background reference and the persistence counters.
func (d *Detector) resetLocked(now time.Time) {
	d.background.Reset()
	d.persistence.Reset()
	d.resetRequested = false
	d.hasBrightness = false
	d.lastReset = now
	d.stats.BackgroundResets++
}

// Reset forces the background to re-initialize from the next frame and drops
// the persistence counters.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetRequested = true
}

// RequestSave marks the next report for saving regardless of detections.
func (d *Detector) RequestSave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveRequested = true
}

// SetShowThreshold toggles copying the motion mask into reports.
func (d *Detector) SetShowThreshold(show bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.showThreshold = show
}

// ShowThreshold reports whether reports carry the motion mask.
func (d *Detector) ShowThreshold() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.showThreshold
}

// UpdateConfig applies a new configuration between frames.
//
// Background, statistics and persistence state are kept; only a changed blur
// size re-initializes the background.
func (d *Detector) UpdateConfig(config Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.config = config
	d.background.SetBlurSize(config.GaussianBlurSize)
	d.background.SetLearningRate(config.BackgroundLearningRate)
	d.thresholder.configure(config)
	d.extractor.minArea = config.MinContourArea
	d.extractor.maxArea = config.MaxContourArea
	d.extractor.setKernel(config.MorphologyKernelSize)
	d.merger.Margin = config.MergeMargin
	d.persistence.configure(config.PersistenceFrames, config.PersistenceMargin, config.PersistenceMaxMisses)
	d.classifier.MinHumanArea = config.MinHumanArea
}

// Config returns the active configuration.
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Stats returns the running totals.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close releases all native resources held by the pipeline.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.background.Close()
	d.extractor.Close()
}
