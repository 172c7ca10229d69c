package gain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"karolbroda.com/resonance/internal/loudness"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) RampGain(target float64, over time.Duration) {
	m.Called(target, over)
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	levels   map[string]float64
	failing  map[string]bool
	cached   map[string]bool
	measured []string
	cleared  bool
}

func newFakeAnalyzer(levels map[string]float64) *fakeAnalyzer {
	return &fakeAnalyzer{
		levels:  levels,
		failing: make(map[string]bool),
		cached:  make(map[string]bool),
	}
}

func (f *fakeAnalyzer) Measure(_ context.Context, trackID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measured = append(f.measured, trackID)
	if f.failing[trackID] {
		return loudness.FallbackDb, &loudness.AnalysisError{TrackID: trackID, Err: errors.New("decode failed")}
	}
	f.cached[trackID] = true
	return f.levels[trackID], nil
}

func (f *fakeAnalyzer) Cached(trackID string) (loudness.Estimate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cached[trackID] {
		return loudness.Estimate{}, false
	}
	return loudness.Estimate{TrackID: trackID, AverageDb: f.levels[trackID]}, true
}

func (f *fakeAnalyzer) ClearCache() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = make(map[string]bool)
	f.cleared = true
	return nil
}

func (f *fakeAnalyzer) measuredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.measured)
}

func TestCompute(t *testing.T) {
	assert.InDelta(t, 0.3162, Compute(-20, -10), 1e-4)
	assert.InDelta(t, 1.995, Compute(-14, -20), 1e-3)
	assert.Equal(t, 1.0, Compute(-14, -14))

	assert.Equal(t, MaxGain, Compute(-10, -70))
	assert.Equal(t, MinGain, Compute(-70, -10))
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("first track is the baseline", func(t *testing.T) {
		sink := &mockSink{}
		sink.On("RampGain", 1.0, RampDuration).Return().Once()
		c := New(sink, newFakeAnalyzer(map[string]float64{"a": -20}), true, nil)

		assert.Equal(t, 1.0, c.Apply(ctx, "a"))

		state := c.State()
		assert.True(t, state.HasBaseline)
		assert.Equal(t, -20.0, state.Baseline)
		sink.AssertExpectations(t)
	})

	t.Run("louder second track is turned down", func(t *testing.T) {
		sink := &mockSink{}
		sink.On("RampGain", mock.Anything, RampDuration).Return()
		c := New(sink, newFakeAnalyzer(map[string]float64{"a": -20, "b": -10}), true, nil)

		c.Apply(ctx, "a")
		g := c.Apply(ctx, "b")

		assert.InDelta(t, 0.316, g, 1e-3)
		assert.Equal(t, -10.0, c.State().Baseline)
		sink.AssertNumberOfCalls(t, "RampGain", 2)
	})

	t.Run("extreme differences are clamped", func(t *testing.T) {
		sink := &mockSink{}
		sink.On("RampGain", mock.Anything, RampDuration).Return()
		c := New(sink, newFakeAnalyzer(map[string]float64{"loud": -5, "quiet": -65}), true, nil)

		c.Apply(ctx, "loud")
		assert.Equal(t, 3.0, c.Apply(ctx, "quiet"))
		assert.Equal(t, 0.1, c.Apply(ctx, "loud"))
	})

	t.Run("failed analysis plays at unity and keeps the baseline", func(t *testing.T) {
		sink := &mockSink{}
		sink.On("RampGain", mock.Anything, RampDuration).Return()
		analyzer := newFakeAnalyzer(map[string]float64{"a": -20, "c": -10})
		analyzer.failing["b"] = true
		c := New(sink, analyzer, true, nil)

		c.Apply(ctx, "a")
		assert.Equal(t, 1.0, c.Apply(ctx, "b"))
		assert.Equal(t, -20.0, c.State().Baseline)
		assert.InDelta(t, 0.316, c.Apply(ctx, "c"), 1e-3)
	})

	t.Run("disabled does nothing", func(t *testing.T) {
		sink := &mockSink{}
		analyzer := newFakeAnalyzer(map[string]float64{"a": -20})
		c := New(sink, analyzer, false, nil)

		assert.Equal(t, 1.0, c.Apply(ctx, "a"))
		assert.Zero(t, analyzer.measuredCount())
		sink.AssertNotCalled(t, "RampGain", mock.Anything, mock.Anything)
	})
}

func TestResetBaseline(t *testing.T) {
	sink := &mockSink{}
	sink.On("RampGain", mock.Anything, RampDuration).Return()
	c := New(sink, newFakeAnalyzer(map[string]float64{"a": -20, "b": -10}), true, nil)
	ctx := context.Background()

	c.Apply(ctx, "a")
	c.ResetBaseline()

	assert.Equal(t, 1.0, c.Apply(ctx, "b"))
}

func TestSetEnabled(t *testing.T) {
	sink := &mockSink{}
	sink.On("RampGain", mock.Anything, RampDuration).Return()
	c := New(sink, newFakeAnalyzer(map[string]float64{"a": -20, "b": -10}), true, nil)
	ctx := context.Background()

	c.Apply(ctx, "a")
	c.Apply(ctx, "b")
	require.InDelta(t, 0.316, c.State().Gain, 1e-3)

	assert.False(t, c.Toggle())
	state := c.State()
	assert.False(t, state.Enabled)
	assert.Equal(t, 1.0, state.Gain)
	assert.False(t, state.HasBaseline)
	sink.AssertCalled(t, "RampGain", 1.0, RampDuration)

	assert.True(t, c.Toggle())
	assert.Equal(t, 1.0, c.Apply(ctx, "b"))
}

func TestPrefetch(t *testing.T) {
	analyzer := newFakeAnalyzer(map[string]float64{"a": -20, "b": -10})
	c := New(nil, analyzer, true, nil)

	c.Prefetch("b")
	c.Wait()
	assert.Equal(t, 1, analyzer.measuredCount())

	// already cached
	c.Prefetch("b")
	c.Wait()
	assert.Equal(t, 1, analyzer.measuredCount())

	c.SetEnabled(false)
	c.Prefetch("a")
	c.Wait()
	assert.Equal(t, 1, analyzer.measuredCount())
}

func TestClearLoudnessCache(t *testing.T) {
	analyzer := newFakeAnalyzer(nil)
	c := New(nil, analyzer, true, nil)

	require.NoError(t, c.ClearLoudnessCache())
	assert.True(t, analyzer.cleared)
}
