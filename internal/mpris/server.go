package mpris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
)

const identity = "Resonance"

var ErrNameTaken = errors.New("mpris service name already owned")

// Player is the command surface the bus object drives.
type Player interface {
	TogglePlay(ctx context.Context) error
	Play(ctx context.Context) error
	Pause()
	Stop()
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(seconds float64) error
	SeekBy(delta float64) error
	SetVolume(level float64)
	SetSpeed(ratio float64) float64
	SetLoop(mode queue.LoopMode)
	Status() app.Status
	Artwork(id string) (string, error)
	Subscribe(fn func(app.Event))
}

// Server exports a Player as org.mpris.MediaPlayer2 on the session bus.
type Server struct {
	conn    *dbus.Conn
	service string
	player  Player
	props   *prop.Properties
	quit    func()
	log     *slog.Logger

	ctx context.Context

	mu   sync.Mutex
	last map[string]any
}

// Serve claims service on conn and starts mirroring p. quit is called when a
// client asks the player to exit.
func Serve(ctx context.Context, conn *dbus.Conn, service string, p Player, quit func(), logger *slog.Logger) (*Server, error) {
	if conn == nil {
		return nil, errors.New("nil dbus connection")
	}
	if service == "" {
		return nil, errors.New("empty mpris service name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		conn:    conn,
		service: service,
		player:  p,
		quit:    quit,
		log:     logger.With("component", "mpris"),
		ctx:     ctx,
		last:    map[string]any{},
	}

	if err := s.export(); err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(service, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request name %s: %w", service, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, service)
	}

	p.Subscribe(s.onEvent)
	s.log.Info("mpris service registered", "name", service)
	return s, nil
}

func (s *Server) export() error {
	root := &rootObject{s}
	playerObj := &playerObject{s}

	if err := s.conn.Export(root, mprisPath, mprisRootIface); err != nil {
		return fmt.Errorf("failed to export root interface: %w", err)
	}
	if err := s.conn.Export(playerObj, mprisPath, mprisPlayerIface); err != nil {
		return fmt.Errorf("failed to export player interface: %w", err)
	}

	props, err := prop.Export(s.conn, mprisPath, s.propertyMap())
	if err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}
	s.props = props

	node := &introspect.Node{
		Name: mprisPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRootIface),
			},
			{
				Name:       mprisPlayerIface,
				Methods:    introspect.Methods(playerObj),
				Signals:    []introspect.Signal{{Name: "Seeked", Args: []introspect.Arg{{Name: "Position", Type: "x"}}}},
				Properties: props.Introspection(mprisPlayerIface),
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}
	return nil
}

func (s *Server) propertyMap() prop.Map {
	st := s.player.Status()
	values := s.playerValues(st)
	s.last = values

	constant := func(v any) *prop.Prop {
		return &prop.Prop{Value: v, Emit: prop.EmitConst}
	}
	dynamic := func(name string) *prop.Prop {
		return &prop.Prop{Value: values[name], Emit: prop.EmitTrue}
	}

	return prop.Map{
		mprisRootIface: {
			"CanQuit":             constant(true),
			"CanRaise":            constant(false),
			"HasTrackList":        constant(false),
			"Identity":            constant(identity),
			"DesktopEntry":        constant("resonance"),
			"SupportedUriSchemes": constant([]string{"file"}),
			"SupportedMimeTypes":  constant([]string{"audio/mpeg", "audio/flac", "audio/wav"}),
		},
		mprisPlayerIface: {
			"PlaybackStatus": dynamic("PlaybackStatus"),
			"LoopStatus": {
				Value:    values["LoopStatus"],
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: s.setLoopStatus,
			},
			"Rate": {
				Value:    values["Rate"],
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: s.setRate,
			},
			"Shuffle": constant(false),
			"Metadata": dynamic("Metadata"),
			"Volume": {
				Value:    values["Volume"],
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: s.setVolume,
			},
			"Position":      {Value: values["Position"], Emit: prop.EmitFalse},
			"MinimumRate":   constant(player.MinSpeed),
			"MaximumRate":   constant(player.MaxSpeed),
			"CanGoNext":     dynamic("CanGoNext"),
			"CanGoPrevious": dynamic("CanGoPrevious"),
			"CanPlay":       dynamic("CanPlay"),
			"CanPause":      dynamic("CanPause"),
			"CanSeek":       dynamic("CanSeek"),
			"CanControl":    constant(true),
		},
	}
}

// playerValues computes every changing player property from a status.
func (s *Server) playerValues(st app.Status) map[string]any {
	art := ""
	if st.Track != nil {
		if ref, err := s.player.Artwork(st.Track.ID); err == nil {
			art = ref
		}
	}
	return statusValues(st, art)
}

func statusValues(st app.Status, artURL string) map[string]any {
	volume := st.Volume
	if st.Muted {
		volume = 0
	}
	return map[string]any{
		"PlaybackStatus": PlaybackStatus(st.State),
		"LoopStatus":     LoopStatus(st.Loop),
		"Rate":           st.Speed,
		"Metadata":       Metadata(st.Track, artURL),
		"Volume":         volume,
		"Position":       micros(st.Position),
		"CanGoNext":      st.Cursor >= 0 && st.Cursor < st.QueueLength-1,
		"CanGoPrevious":  st.Cursor > 0,
		"CanPlay":        st.QueueLength > 0,
		"CanPause":       st.Track != nil,
		"CanSeek":        st.Track != nil && st.Duration > 0,
	}
}

func (s *Server) onEvent(ev app.Event) {
	if ev.Kind == app.EventPlayback && ev.Playback.Kind == player.EventSeeked {
		if err := s.conn.Emit(mprisPath, mprisPlayerIface+".Seeked", micros(ev.Playback.Position)); err != nil {
			s.log.Debug("failed to emit seeked", "error", err)
		}
	}
	s.refresh()
}

// refresh pushes properties that changed since the last refresh. Position
// never emits, so it is updated every time.
func (s *Server) refresh() {
	values := s.playerValues(s.player.Status())

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range values {
		if name != "Position" && equalValue(s.last[name], value) {
			continue
		}
		s.props.SetMust(mprisPlayerIface, name, value)
	}
	s.last = values
}

func equalValue(a, b any) bool {
	am, aok := a.(map[string]dbus.Variant)
	bm, bok := b.(map[string]dbus.Variant)
	if aok || bok {
		if !aok || !bok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			w, ok := bm[k]
			if !ok || v.String() != w.String() {
				return false
			}
		}
		return true
	}
	return a == b
}

func (s *Server) setLoopStatus(c *prop.Change) *dbus.Error {
	status, ok := c.Value.(string)
	if !ok {
		return prop.ErrInvalidArg
	}
	mode, ok := ParseLoopStatus(status)
	if !ok {
		s.log.Debug("ignoring unsupported loop status", "status", status)
		return nil
	}
	s.player.SetLoop(mode)
	return nil
}

func (s *Server) setRate(c *prop.Change) *dbus.Error {
	rate, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	s.player.SetSpeed(rate)
	return nil
}

func (s *Server) setVolume(c *prop.Change) *dbus.Error {
	level, ok := c.Value.(float64)
	if !ok {
		return prop.ErrInvalidArg
	}
	s.player.SetVolume(level)
	return nil
}

// Close releases the bus name.
func (s *Server) Close() error {
	_, err := s.conn.ReleaseName(s.service)
	return err
}

type rootObject struct{ s *Server }

func (r *rootObject) Raise() *dbus.Error { return nil }

func (r *rootObject) Quit() *dbus.Error {
	if r.s.quit != nil {
		r.s.quit()
	}
	return nil
}

type playerObject struct{ s *Server }

func (p *playerObject) Next() *dbus.Error {
	return dbusError(p.s.player.Next(p.s.ctx))
}

func (p *playerObject) Previous() *dbus.Error {
	return dbusError(p.s.player.Previous(p.s.ctx))
}

func (p *playerObject) Pause() *dbus.Error {
	p.s.player.Pause()
	return nil
}

func (p *playerObject) PlayPause() *dbus.Error {
	return dbusError(p.s.player.TogglePlay(p.s.ctx))
}

func (p *playerObject) Stop() *dbus.Error {
	p.s.player.Stop()
	return nil
}

func (p *playerObject) Play() *dbus.Error {
	return dbusError(p.s.player.Play(p.s.ctx))
}

// Seek moves by offset microseconds.
func (p *playerObject) Seek(offset int64) *dbus.Error {
	return dbusError(p.s.player.SeekBy(seconds(offset)))
}

// SetPosition is ignored unless trackID names the current track.
func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	st := p.s.player.Status()
	if st.Track == nil || TrackObjectPath(st.Track.ID) != trackID {
		return nil
	}
	if position < 0 || seconds(position) > st.Duration {
		return nil
	}
	return dbusError(p.s.player.Seek(seconds(position)))
}

func (p *playerObject) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(errors.New("opening uris is not supported"))
}

func dbusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return dbus.MakeFailedError(err)
}
