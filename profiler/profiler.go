// Package profiler times pipeline stages and periodically logs runtime and
// timing summaries.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// CollectorFunc adapts a function to MetricsCollector.
type CollectorFunc func() map[string]float64

// CollectMetrics calls f.
func (f CollectorFunc) CollectMetrics() map[string]float64 {
	return f()
}

// RuntimeProfiler tracks per-stage durations, custom metrics and process
// memory, and logs a summary every report interval.
//
// It satisfies motion.StageTimer, so it can be handed straight to the detector.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started time.Time
	running bool

	memStats    runtime.MemStats
	lastGCCount uint32

	metrics    map[string]*MetricTracker
	collectors []MetricsCollector
	operations map[string]*TimeTracker
}

// MetricTracker keeps a sliding window of samples for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker keeps a sliding window of durations for one operation.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// OperationSummary is a snapshot of one operation's timings.
type OperationSummary struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	P95   time.Duration
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 10s)
	ReportInterval time.Duration
	// SampleInterval specifies how often to collect samples (default: 1s)
	SampleInterval time.Duration
	// MaxSamples specifies the window kept per metric (default: 600)
	MaxSamples int
	// Logger receives the reports. Defaults to a no-op logger.
	Logger *zap.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
//
// @example
// prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: logger})
// prof.Start()
// defer prof.Stop()
// detector := motion.NewDetector(cfg, motion.WithStageTimer(prof))
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		started:        time.Now(),
		metrics:        make(map[string]*MetricTracker),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start launches the sampling and reporting goroutines. Calling it twice is a no-op.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.started = time.Now()

	rp.wg.Add(2)
	go rp.loop(rp.sampleInterval, rp.sample)
	go rp.loop(rp.reportInterval, rp.Report)
}

// Stop stops the goroutines, waits for them and logs a final report.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
	rp.Report()
}

func (rp *RuntimeProfiler) loop(interval time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// AddMetricsCollector registers a collector polled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetric(name, value)
}

func (rp *RuntimeProfiler) recordMetric(name string, value float64) {
	tracker, exists := rp.metrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		rp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operations[name]
	if !exists {
		tracker = &TimeTracker{min: duration, max: duration}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.total += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, duration)
	tracker.max = max(tracker.max, duration)
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.Lock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.Unlock()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	// Collectors may take their own locks; poll them unlocked.
	values := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		values = append(values, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.memStats = stats
	rp.recordMetric("goroutines", float64(runtime.NumGoroutine()))
	for _, m := range values {
		for name, v := range m {
			rp.recordMetric(name, v)
		}
	}
}

// Operations returns a timing summary per operation, sorted by name.
func (rp *RuntimeProfiler) Operations() []OperationSummary {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make([]OperationSummary, 0, len(rp.operations))
	for name, tracker := range rp.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		out = append(out, OperationSummary{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.total / time.Duration(len(tracker.durations)),
			Min:   tracker.min,
			Max:   tracker.max,
			P95:   quantile(tracker.durations, 0.95),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func quantile(durations []time.Duration, p float64) time.Duration {
	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}
	sort.Float64s(xs)
	return time.Duration(stat.Quantile(p, stat.Empirical, xs, nil))
}

// Metric returns the windowed average, min and max of a custom metric.
func (rp *RuntimeProfiler) Metric(name string) (avg, lo, hi float64, ok bool) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	tracker, exists := rp.metrics[name]
	if !exists || len(tracker.values) == 0 {
		return 0, 0, 0, false
	}
	return tracker.sum / float64(len(tracker.values)), tracker.min, tracker.max, true
}

// Report logs the current memory, metric and timing summary.
func (rp *RuntimeProfiler) Report() {
	ops := rp.Operations()

	rp.mu.Lock()
	mem := rp.memStats
	newGC := mem.NumGC - rp.lastGCCount
	rp.lastGCCount = mem.NumGC
	metrics := make([]zap.Field, 0, len(rp.metrics))
	for name, tracker := range rp.metrics {
		if len(tracker.values) > 0 {
			metrics = append(metrics, zap.Float64(name, tracker.sum/float64(len(tracker.values))))
		}
	}
	uptime := time.Since(rp.started)
	rp.mu.Unlock()

	rp.logger.Info("runtime profile",
		zap.Duration("uptime", uptime.Truncate(time.Millisecond)),
		zap.String("heap_alloc", humanize.Bytes(mem.HeapAlloc)),
		zap.String("sys", humanize.Bytes(mem.Sys)),
		zap.Uint32("gc_cycles", mem.NumGC),
		zap.Uint32("gc_new", newGC),
		zap.Dict("metrics", metrics...))

	for _, op := range ops {
		rp.logger.Info("stage timing",
			zap.String("stage", op.Name),
			zap.Int64("count", op.Count),
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", op.Min.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
			zap.Duration("p95", op.P95.Truncate(time.Microsecond)))
	}
}
