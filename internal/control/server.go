package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
	"karolbroda.com/resonance/internal/track"
)

const shutdownTimeout = 5 * time.Second

// Player is the command surface the API exposes.
type Player interface {
	Status() app.Status
	QueueView() queue.View
	Songs(ctx context.Context) ([]track.Info, error)
	Playlists() ([]library.Playlist, error)
	PlaylistTracks(ctx context.Context, name string) ([]track.Info, error)

	Enqueue(ctx context.Context, id string) (int, error)
	EnqueuePlaylist(ctx context.Context, name string, opts queue.GroupOptions) (queue.GroupID, error)
	PlayNow(ctx context.Context, id string) error
	JumpTo(ctx context.Context, index int) error
	Remove(ctx context.Context, index int) error
	Move(from, to int) error
	ClearQueue()
	ToggleGroup(group queue.GroupID) bool

	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Stop()
	Seek(seconds float64) error
	SeekBy(delta float64) error
	SetVolume(level float64)
	ToggleMute() bool
	SetSpeed(ratio float64) float64
	SetLoop(mode queue.LoopMode)
	CycleLoop() queue.LoopMode
	SetNormalization(enabled bool)

	Lyrics(ctx context.Context, id string) (*lyrics.Lyrics, error)
	Subscribe(fn func(app.Event))
}

type Server struct {
	player Player
	hub    *Hub
	log    *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(p Player, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "control")
	s := &Server{
		player: p,
		hub:    NewHub(log),
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
	}
	p.Subscribe(s.onEvent)
	return s
}

// sameHost accepts browser connections only from the API's own origin.
// Non-browser clients send no Origin.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	for _, prefix := range []string{"http://", "https://"} {
		rest, ok := strings.CutPrefix(origin, prefix)
		if !ok {
			continue
		}
		originHost, _, err := net.SplitHostPort(rest)
		if err != nil {
			originHost = rest
		}
		return originHost == host
	}
	return false
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/songs", s.handleSongs)
		r.Get("/playlists", s.handlePlaylists)
		r.Get("/playlists/{name}", s.handlePlaylistTracks)
		r.Get("/lyrics/{id}", s.handleLyrics)

		r.Get("/queue", s.handleQueue)
		r.Post("/queue", s.handleEnqueue)
		r.Delete("/queue", s.handleClear)
		r.Post("/queue/playlist", s.handleEnqueuePlaylist)
		r.Post("/queue/move", s.handleMove)
		r.Post("/queue/{index}/play", s.handleJump)
		r.Delete("/queue/{index}", s.handleRemove)
		r.Post("/queue/groups/{playlist}/{instance}/toggle", s.handleToggleGroup)

		r.Post("/play-now", s.handlePlayNow)
		r.Post("/toggle", s.handleToggle)
		r.Post("/next", s.handleNext)
		r.Post("/previous", s.handlePrevious)
		r.Post("/stop", s.handleStop)
		r.Post("/seek", s.handleSeek)
		r.Post("/volume", s.handleVolume)
		r.Post("/mute", s.handleMute)
		r.Post("/speed", s.handleSpeed)
		r.Post("/loop", s.handleLoop)
		r.Post("/normalization", s.handleNormalization)
	})

	return r
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RunHub starts the websocket hub for callers that mount Router themselves.
func (s *Server) RunHub(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) onEvent(ev app.Event) {
	// position ticks are frequent; clients interpolate between status pushes
	if ev.Kind == app.EventPlayback && ev.Playback.Kind == player.EventPositionChanged {
		return
	}
	data, err := json.Marshal(s.eventDTO(ev.Kind.String()))
	if err != nil {
		s.log.Warn("failed to encode event", "error", err)
		return
	}
	s.hub.Broadcast(data)
}

func (s *Server) eventDTO(kind string) EventDTO {
	dto := EventDTO{Type: kind, Status: s.player.Status()}
	if kind != app.EventPlayback.String() {
		q := toQueueDTO(s.player.QueueView())
		dto.Queue = &q
	}
	return dto
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "resonance",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn)
	if b, err := json.Marshal(s.eventDTO("welcome")); err == nil {
		client.send <- b
	}

	if !s.hub.Register(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.player.Songs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	pls, err := s.player.Playlists()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTOs(pls))
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.player.PlaylistTracks(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	result, err := s.player.Lyrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toQueueDTO(s.player.QueueView()))
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	index, err := s.player.Enqueue(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"index": index})
}

func (s *Server) handleEnqueuePlaylist(w http.ResponseWriter, r *http.Request) {
	var req enqueuePlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	group, err := s.player.EnqueuePlaylist(r.Context(), req.Name, queue.GroupOptions{
		PlayNow:  req.PlayNow,
		Shuffle:  req.Shuffle,
		Expanded: req.Expanded,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(&group))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.player.ClearQueue()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.respond(w, s.player.Move(req.From, req.To))
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	s.respond(w, s.player.JumpTo(r.Context(), index))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	s.respond(w, s.player.Remove(r.Context(), index))
}

func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	instance, err := strconv.Atoi(chi.URLParam(r, "instance"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid group instance")
		return
	}
	collapsed := s.player.ToggleGroup(queue.GroupID{
		Playlist: chi.URLParam(r, "playlist"),
		Instance: instance,
	})
	writeJSON(w, http.StatusOK, map[string]any{"collapsed": collapsed})
}

func (s *Server) handlePlayNow(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	s.respond(w, s.player.PlayNow(r.Context(), req.ID))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.player.TogglePlay(r.Context()))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.player.Next(r.Context()))
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.player.Previous(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	s.respond(w, nil)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case req.Position != nil:
		s.respond(w, s.player.Seek(*req.Position))
	case req.Delta != nil:
		s.respond(w, s.player.SeekBy(*req.Delta))
	default:
		writeJSONError(w, http.StatusBadRequest, "position or delta is required")
	}
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.player.SetVolume(req.Level)
	s.respond(w, nil)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	muted := s.player.ToggleMute()
	writeJSON(w, http.StatusOK, map[string]any{"muted": muted})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ratio := s.player.SetSpeed(req.Ratio)
	writeJSON(w, http.StatusOK, map[string]any{"speed": ratio})
}

// handleLoop sets the mode when one is given and cycles otherwise.
func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	var req loopRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	var mode queue.LoopMode
	if req.Mode != nil {
		mode = *req.Mode
		s.player.SetLoop(mode)
	} else {
		mode = s.player.CycleLoop()
	}
	writeJSON(w, http.StatusOK, map[string]any{"loop": mode})
}

func (s *Server) handleNormalization(w http.ResponseWriter, r *http.Request) {
	var req normalizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.player.SetNormalization(req.Enabled)
	s.respond(w, nil)
}

// respond writes the status after a command, or the command's error.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Status())
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid queue index")
		return 0, false
	}
	return index, true
}
