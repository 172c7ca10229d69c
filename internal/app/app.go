package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"karolbroda.com/resonance/internal/audio"
	"karolbroda.com/resonance/internal/cache"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/gain"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/loudness"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/store"
)

const eventBuffer = 256

// Options override pieces of the graph New would otherwise build from config.
type Options struct {
	// Sink replaces the audio output, for tests and headless runs.
	Sink audio.Sink
	// LyricsCache and LoudnessCache replace the on-disk caches.
	LyricsCache   *cache.DiskCache[lyrics.Lyrics]
	LoudnessCache *cache.DiskCache[loudness.Estimate]
}

// App owns every long-lived component and is the single command surface the
// terminal UI, the HTTP API and MPRIS drive.
type App struct {
	cfg *config.Config
	log *slog.Logger

	library  *library.Library
	store    *store.DB
	engine   *audio.Engine
	probe    *audio.Probe
	analyzer *loudness.Analyzer
	session  *player.Session
	gain     *gain.Controller
	queue    *queue.Manager
	lyrics   *lyrics.Client

	lyricsCache   *cache.DiskCache[lyrics.Lyrics]
	loudnessCache *cache.DiskCache[loudness.Estimate]

	events chan Event

	mu        sync.Mutex
	listeners []func(Event)
	runCtx    context.Context
}

// New builds the player from cfg. The returned App does nothing until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "app")

	lib, err := library.Open(cfg.LibraryDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	lyricsCache := opts.LyricsCache
	if lyricsCache == nil {
		lyricsCache = openCache[lyrics.Lyrics](log, cache.NamespaceLyrics, cache.LyricsTTL)
	}
	loudnessCache := opts.LoudnessCache
	if loudnessCache == nil {
		loudnessCache = openCache[loudness.Estimate](log, cache.NamespaceLoudness, 0)
	}

	rate := beep.SampleRate(cfg.SampleRate)
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	sink := opts.Sink
	if sink == nil {
		sink = openSink(log, rate, cfg.NoAudio)
	}

	prefs, err := db.Preferences()
	if err != nil {
		log.Warn("failed to read preferences, using defaults", "error", err)
		prefs = store.DefaultPreferences()
	}

	engine := audio.NewEngine(sink, rate, logger)
	probe := audio.NewProbe(lib)
	analyzer := loudness.NewAnalyzer(probe, loudnessCache, logger)
	session := player.NewSession(engine, lib, logger)
	normalizer := gain.New(engine, analyzer, prefs.Normalization, logger)
	manager := queue.NewManager(player.NewDeck(session, normalizer, logger), logger)

	session.SetVolume(prefs.Volume)
	session.SetSpeed(prefs.Speed)

	a := &App{
		cfg:           cfg,
		log:           log,
		library:       lib,
		store:         db,
		engine:        engine,
		probe:         probe,
		analyzer:      analyzer,
		session:       session,
		gain:          normalizer,
		queue:         manager,
		lyrics:        lyrics.NewClient(cfg.LrclibURL, lyricsCache, logger),
		lyricsCache:   lyricsCache,
		loudnessCache: loudnessCache,
		events:        make(chan Event, eventBuffer),
		runCtx:        context.Background(),
	}

	session.Subscribe(a.onPlayback)
	manager.Subscribe(func(queue.Snapshot) {
		a.publish(Event{Kind: EventQueue})
	})

	log.Info("player ready",
		"library", lib.Root(),
		"data", db.Path(),
		"normalization", prefs.Normalization,
		"no_audio", cfg.NoAudio,
	)
	return a, nil
}

func openCache[T any](log *slog.Logger, namespace string, ttl time.Duration) *cache.DiskCache[T] {
	c, err := cache.New[T](namespace, ttl)
	if err != nil {
		log.Warn("disk cache unavailable, keeping results in memory", "namespace", namespace, "error", err)
		return cache.Memory[T](ttl)
	}
	return c
}

func openSink(log *slog.Logger, rate beep.SampleRate, noAudio bool) audio.Sink {
	if noAudio {
		return audio.NewNullSink(rate)
	}
	sink, err := audio.NewSpeakerSink(rate)
	if err != nil {
		log.Warn("audio output unavailable, playing silently", "error", err)
		return audio.NewNullSink(rate)
	}
	return sink
}

// Run dispatches playback and queue events until ctx is done. Listeners
// registered with Subscribe are called from here.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.session.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := a.library.Watch(ctx, func() { a.publish(Event{Kind: EventLibrary}) }); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("library watch stopped", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case ev := <-a.events:
			a.mu.Lock()
			listeners := a.listeners
			a.mu.Unlock()
			for _, fn := range listeners {
				fn(ev)
			}
		}
	}
}

// Subscribe registers fn for every app event. fn runs on the Run goroutine
// and may call back into the App.
func (a *App) Subscribe(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Close stops playback and releases the audio device and database.
func (a *App) Close() error {
	a.queue.Clear()
	a.gain.Wait()
	return errors.Join(a.engine.Close(), a.store.Close())
}

// onPlayback runs on the session goroutine, or on a command goroutine that
// may hold the queue lock. Only track ends, which always arrive on the
// session goroutine, are allowed to call into the queue.
func (a *App) onPlayback(ev player.Event) {
	a.publish(Event{Kind: EventPlayback, Playback: ev})
	if ev.Kind == player.EventTrackEnded {
		a.advance()
	}
}

func (a *App) advance() {
	a.mu.Lock()
	ctx := a.runCtx
	a.mu.Unlock()

	if err := a.queue.HandleTrackEnded(ctx); err != nil {
		a.log.Warn("failed to advance after track end", "error", err)
	}
}

func (a *App) publish(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.log.Debug("event dropped", "kind", ev.Kind.String())
	}
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Library() *library.Library { return a.library }
