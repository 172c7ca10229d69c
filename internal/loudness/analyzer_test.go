package loudness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	duration  time.Duration
	amplitude func(at time.Duration) float64
	reads     *atomic.Int32
	closed    *atomic.Bool
	readErr   error
}

func (s *fakeSource) Duration() time.Duration { return s.duration }

func (s *fakeSource) Read(at time.Duration, window time.Duration) ([][2]float64, error) {
	s.reads.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	amp := s.amplitude(at)
	frames := make([][2]float64, 64)
	for i := range frames {
		frames[i] = [2]float64{amp, amp}
	}
	return frames, nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeOpener struct {
	duration  time.Duration
	amplitude func(at time.Duration) float64
	openErr   error
	readErr   error
	gate      chan struct{}

	opens  atomic.Int32
	reads  atomic.Int32
	closed atomic.Bool
}

func (o *fakeOpener) Open(context.Context, string) (Source, error) {
	o.opens.Add(1)
	if o.gate != nil {
		<-o.gate
	}
	if o.openErr != nil {
		return nil, o.openErr
	}
	return &fakeSource{
		duration:  o.duration,
		amplitude: o.amplitude,
		reads:     &o.reads,
		closed:    &o.closed,
		readErr:   o.readErr,
	}, nil
}

func constant(amp float64) func(time.Duration) float64 {
	return func(time.Duration) float64 { return amp }
}

type memStore struct {
	mu      sync.Mutex
	data    map[string]Estimate
	setErr  error
	cleared bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]Estimate)}
}

func (s *memStore) Get(key string) (Estimate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	est, ok := s.data[key]
	if !ok {
		return Estimate{}, errors.New("miss")
	}
	return est, nil
}

func (s *memStore) Set(key string, value Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Estimate)
	s.cleared = true
	return nil
}

func TestAnalyzerMeasures(t *testing.T) {
	opener := &fakeOpener{duration: 90 * time.Second, amplitude: constant(0.1)}
	store := newMemStore()
	a := NewAnalyzer(opener, store, nil)

	db, err := a.Measure(context.Background(), "a.mp3")

	require.NoError(t, err)
	assert.InDelta(t, -20.0, db, 1e-6)
	assert.Equal(t, int32(20), opener.reads.Load())
	assert.True(t, opener.closed.Load())

	stored, err := store.Get("a.mp3")
	require.NoError(t, err)
	assert.Equal(t, 20, stored.Samples)
	assert.InDelta(t, -20.0, stored.AverageDb, 1e-6)
}

func TestAnalyzerMemoizes(t *testing.T) {
	opener := &fakeOpener{duration: 200 * time.Second, amplitude: constant(0.5)}
	a := NewAnalyzer(opener, nil, nil)
	ctx := context.Background()

	first := a.Analyze(ctx, "a.mp3")
	readsAfterFirst := opener.reads.Load()
	second := a.Analyze(ctx, "a.mp3")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(30), readsAfterFirst)
	assert.Equal(t, readsAfterFirst, opener.reads.Load())
	assert.Equal(t, int32(1), opener.opens.Load())
}

func TestAnalyzerUsesPersistedEstimate(t *testing.T) {
	opener := &fakeOpener{duration: 90 * time.Second, amplitude: constant(0.1)}
	store := newMemStore()
	require.NoError(t, store.Set("a.mp3", Estimate{TrackID: "a.mp3", AverageDb: -14}))
	a := NewAnalyzer(opener, store, nil)

	db := a.Analyze(context.Background(), "a.mp3")

	assert.Equal(t, -14.0, db)
	assert.Zero(t, opener.opens.Load())
}

func TestAnalyzerSharesInFlightWork(t *testing.T) {
	opener := &fakeOpener{
		duration:  90 * time.Second,
		amplitude: constant(0.1),
		gate:      make(chan struct{}),
	}
	a := NewAnalyzer(opener, nil, nil)

	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Analyze(context.Background(), "a.mp3")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(opener.gate)
	wg.Wait()

	assert.Equal(t, int32(1), opener.opens.Load())
	for _, r := range results {
		assert.InDelta(t, -20.0, r, 1e-6)
	}
}

func TestAnalyzerFallsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("open failure", func(t *testing.T) {
		openErr := errors.New("missing file")
		opener := &fakeOpener{openErr: openErr}
		a := NewAnalyzer(opener, nil, nil)

		db, err := a.Measure(ctx, "a.mp3")

		assert.Equal(t, FallbackDb, db)
		assert.ErrorIs(t, err, openErr)
		var analysisErr *AnalysisError
		require.ErrorAs(t, err, &analysisErr)
		assert.Equal(t, "a.mp3", analysisErr.TrackID)

		_, ok := a.Cached("a.mp3")
		assert.False(t, ok)
	})

	t.Run("read failure releases the source", func(t *testing.T) {
		opener := &fakeOpener{duration: time.Minute, amplitude: constant(0.1), readErr: errors.New("bad frame")}
		a := NewAnalyzer(opener, nil, nil)

		assert.Equal(t, FallbackDb, a.Analyze(ctx, "a.mp3"))
		assert.True(t, opener.closed.Load())
	})

	t.Run("silence only", func(t *testing.T) {
		opener := &fakeOpener{duration: time.Minute, amplitude: constant(0)}
		a := NewAnalyzer(opener, nil, nil)

		_, err := a.Measure(ctx, "a.mp3")

		assert.ErrorIs(t, err, ErrNoSamples)
	})

	t.Run("no duration", func(t *testing.T) {
		opener := &fakeOpener{amplitude: constant(0.1)}
		a := NewAnalyzer(opener, nil, nil)

		_, err := a.Measure(ctx, "a.mp3")

		assert.ErrorIs(t, err, ErrNoDuration)
		assert.Zero(t, opener.reads.Load())
	})
}

func TestAnalyzerDropsSilentPoints(t *testing.T) {
	// silent for the first half, -20dB afterwards
	opener := &fakeOpener{
		duration: 100 * time.Second,
		amplitude: func(at time.Duration) float64 {
			if at < 50*time.Second {
				return 0
			}
			return 0.1
		},
	}
	a := NewAnalyzer(opener, nil, nil)

	est, err := a.Measure(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.InDelta(t, -20.0, est, 1e-6)

	cached, ok := a.Cached("a.mp3")
	require.True(t, ok)
	assert.Equal(t, 10, cached.Samples)
}

func TestAnalyzerPersistenceFailureIsIgnored(t *testing.T) {
	opener := &fakeOpener{duration: time.Minute, amplitude: constant(0.1)}
	store := newMemStore()
	store.setErr = errors.New("disk full")
	a := NewAnalyzer(opener, store, nil)

	db, err := a.Measure(context.Background(), "a.mp3")

	require.NoError(t, err)
	assert.InDelta(t, -20.0, db, 1e-6)
	_, ok := a.Cached("a.mp3")
	assert.True(t, ok)
}

func TestAnalyzerClearCache(t *testing.T) {
	opener := &fakeOpener{duration: time.Minute, amplitude: constant(0.1)}
	store := newMemStore()
	a := NewAnalyzer(opener, store, nil)
	ctx := context.Background()

	a.Analyze(ctx, "a.mp3")
	require.NoError(t, a.ClearCache())

	_, ok := a.Cached("a.mp3")
	assert.False(t, ok)
	assert.True(t, store.cleared)

	a.Analyze(ctx, "a.mp3")
	assert.Equal(t, int32(2), opener.opens.Load())
}
