package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperationSummary(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	for _, ms := range []int{5, 1, 3, 2, 4} {
		rp.recordOperationTime("threshold", time.Duration(ms)*time.Millisecond)
	}
	rp.recordOperationTime("extract", time.Millisecond)

	ops := rp.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, "extract", ops[0].Name)

	th := ops[1]
	assert.Equal(t, "threshold", th.Name)
	assert.Equal(t, int64(5), th.Count)
	assert.Equal(t, 3*time.Millisecond, th.Avg)
	assert.Equal(t, time.Millisecond, th.Min)
	assert.Equal(t, 5*time.Millisecond, th.Max)
	assert.Equal(t, 5*time.Millisecond, th.P95)
}

func TestSlidingWindow(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2})
	rp.RecordMetric("cut", 10)
	rp.RecordMetric("cut", 20)
	rp.RecordMetric("cut", 40)

	avg, lo, hi, ok := rp.Metric("cut")
	require.True(t, ok)
	assert.Equal(t, 30.0, avg)
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 40.0, hi)

	_, _, _, ok = rp.Metric("missing")
	assert.False(t, ok)
}

func TestStartOperation(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	done := rp.StartOperation("frame")
	time.Sleep(2 * time.Millisecond)
	done()

	ops := rp.Operations()
	require.Len(t, ops, 1)
	assert.GreaterOrEqual(t, ops[0].Max, 2*time.Millisecond)
}

func TestCollectorsAndReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rp := NewRuntimeProfiler(ProfilingOptions{
		ReportInterval: time.Hour,
		SampleInterval: 5 * time.Millisecond,
		Logger:         zap.New(core),
	})
	rp.AddMetricsCollector(CollectorFunc(func() map[string]float64 {
		return map[string]float64{"frames_processed": 7}
	}))
	rp.StartOperation("merge")()

	rp.Start()
	rp.Start()
	require.Eventually(t, func() bool {
		_, _, _, ok := rp.Metric("frames_processed")
		return ok
	}, time.Second, 5*time.Millisecond)
	rp.Stop()
	rp.Stop()

	assert.Equal(t, 1, logs.FilterMessage("runtime profile").Len())
	timings := logs.FilterMessage("stage timing").All()
	require.Len(t, timings, 1)
	assert.Equal(t, "merge", timings[0].ContextMap()["stage"])
}
