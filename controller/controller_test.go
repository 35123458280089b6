// Package controller - frame loop ordering, back-pressure and command handling
package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"
)

// MockSource yields a fixed number of frames, then err (io.EOF by default).
type MockSource struct {
	frames int
	served int
	err    error
	closed bool
}

func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if m.served >= m.frames {
		if m.err != nil {
			return Frame{}, m.err
		}
		return Frame{}, io.EOF
	}
	m.served++
	return Frame{Mat: gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)}, nil
}

func (m *MockSource) Close() error {
	m.closed = true
	return nil
}

// BlockingSource never produces a frame; Read returns when ctx is done.
type BlockingSource struct{}

func (BlockingSource) Read(ctx context.Context) (Frame, error) {
	<-ctx.Done()
	return Frame{}, ctx.Err()
}

func (BlockingSource) Close() error { return nil }

// MockPipeline records every call it receives.
type MockPipeline struct {
	mu     sync.Mutex
	events []string
	frames []uint64
	show   bool
}

func (m *MockPipeline) Process(frame motion.Frame) *motion.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "process")
	m.frames = append(m.frames, frame.Index)
	return &motion.Report{FrameIndex: frame.Index, Frame: gocv.NewMat(), Mask: gocv.NewMat()}
}

func (m *MockPipeline) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "reset")
}

func (m *MockPipeline) RequestSave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "save")
}

func (m *MockPipeline) SetShowThreshold(show bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.show = show
	m.events = append(m.events, "toggle")
}

func (m *MockPipeline) ShowThreshold() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.show
}

func TestRunProcessesFramesInOrder(t *testing.T) {
	source := &MockSource{frames: 5}
	pipeline := &MockPipeline{}

	var handled []uint64
	sink := SinkFunc(func(_ context.Context, r *motion.Report) error {
		handled = append(handled, r.FrameIndex)
		return nil
	})

	ctrl := New(source, pipeline, WithLogger(zaptest.NewLogger(t)), WithQueueSize(16), WithSinks(sink))
	require.NoError(t, ctrl.Run(context.Background()))

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, pipeline.frames)
	assert.Equal(t, pipeline.frames, handled)
	assert.True(t, source.closed)

	stats := ctrl.Stats()
	assert.Equal(t, uint64(5), stats.Read)
	assert.Equal(t, stats.Read, stats.Processed+stats.Dropped)
}

func TestRunSinkErrorsDoNotStopLoop(t *testing.T) {
	source := &MockSource{frames: 3}
	calls := 0
	failing := SinkFunc(func(context.Context, *motion.Report) error {
		calls++
		return errors.New("disk full")
	})
	after := 0
	counting := SinkFunc(func(context.Context, *motion.Report) error {
		after++
		return nil
	})

	ctrl := New(source, &MockPipeline{}, WithQueueSize(16), WithSinks(failing, counting))
	require.NoError(t, ctrl.Run(context.Background()))

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, after, "later sinks still run")
	assert.Equal(t, uint64(3), ctrl.Stats().SinkErrors)
}

func TestRunReturnsSourceError(t *testing.T) {
	boom := errors.New("camera unplugged")
	source := &MockSource{frames: 2, err: boom}

	ctrl := New(source, &MockPipeline{})
	err := ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, source.closed)
}

func TestRunCommandsApplyBeforeNextFrame(t *testing.T) {
	pipeline := &MockPipeline{}
	ctrl := New(&MockSource{frames: 1}, pipeline)

	require.True(t, ctrl.Send(CommandResetBackground))
	require.True(t, ctrl.Send(CommandSave))
	ctrl.Commands() <- CommandToggleThreshold

	require.NoError(t, ctrl.Run(context.Background()))

	assert.Equal(t, []string{"reset", "save", "toggle", "process"}, pipeline.events)
	assert.True(t, pipeline.ShowThreshold())
}

func TestRunQuitCommand(t *testing.T) {
	ctrl := New(BlockingSource{}, &MockPipeline{})

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	ctrl.Commands() <- CommandQuit

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on quit")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := New(BlockingSource{}, &MockPipeline{})

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestEnqueueDropsOldest(t *testing.T) {
	ctrl := New(&MockSource{}, &MockPipeline{}, WithQueueSize(2))
	queue := make(chan Frame, ctrl.queueSize)

	for i := uint64(1); i <= 4; i++ {
		ctrl.enqueue(queue, Frame{Index: i, Mat: gocv.NewMat()})
	}

	require.Len(t, queue, 2)
	first := <-queue
	second := <-queue
	assert.Equal(t, uint64(3), first.Index)
	assert.Equal(t, uint64(4), second.Index)
	assert.Equal(t, uint64(2), ctrl.Stats().Dropped)
	first.Close()
	second.Close()
}

func TestQueueSizeLowerBound(t *testing.T) {
	ctrl := New(&MockSource{}, &MockPipeline{}, WithQueueSize(0))
	assert.Equal(t, 1, ctrl.queueSize)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "reset-background", CommandResetBackground.String())
	assert.Equal(t, "save", CommandSave.String())
	assert.Equal(t, "toggle-threshold", CommandToggleThreshold.String())
	assert.Equal(t, "quit", CommandQuit.String())
	assert.Equal(t, "unknown", Command(0).String())
}
