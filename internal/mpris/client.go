package mpris

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"karolbroda.com/resonance/internal/track"
)

type ChangeKind int

const (
	ChangeTrack ChangeKind = iota
	ChangePlayback
	ChangeLoop
	ChangeSeeked
)

// Change is a property change seen on a followed player.
type Change struct {
	Kind     ChangeKind
	Track    track.Info
	Status   string
	Loop     string
	Position time.Duration
}

// RemoteStatus is a snapshot read from a player's properties.
type RemoteStatus struct {
	Track    track.Info
	Status   string
	Loop     string
	Volume   float64
	Rate     float64
	Position time.Duration
}

// Client drives any MPRIS player, resonance included.
type Client struct {
	bus     *dbus.Conn
	service string
}

// Dial connects to the session bus.
func Dial(service string) (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewClient(conn, service)
}

func NewClient(bus *dbus.Conn, service string) (*Client, error) {
	if bus == nil {
		return nil, errors.New("nil dbus connection")
	}
	if service == "" {
		return nil, errors.New("empty mpris service name")
	}
	return &Client{bus: bus, service: service}, nil
}

func (c *Client) Close() error {
	return c.bus.Close()
}

func (c *Client) object() dbus.BusObject {
	return c.bus.Object(c.service, mprisPath)
}

func (c *Client) call(method string, args ...any) error {
	if err := c.object().Call(mprisPlayerIface+"."+method, 0, args...).Err; err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

func (c *Client) PlayPause() error { return c.call("PlayPause") }
func (c *Client) Play() error      { return c.call("Play") }
func (c *Client) Pause() error     { return c.call("Pause") }
func (c *Client) Stop() error      { return c.call("Stop") }
func (c *Client) Next() error      { return c.call("Next") }
func (c *Client) Previous() error  { return c.call("Previous") }

// Seek moves playback by offset, which may be negative.
func (c *Client) Seek(offset time.Duration) error {
	return c.call("Seek", offset.Microseconds())
}

func (c *Client) SetLoopStatus(status string) error {
	if err := c.object().SetProperty(mprisPlayerIface+".LoopStatus", dbus.MakeVariant(status)); err != nil {
		return fmt.Errorf("failed to set loop status: %w", err)
	}
	return nil
}

func (c *Client) SetVolume(level float64) error {
	if err := c.object().SetProperty(mprisPlayerIface+".Volume", dbus.MakeVariant(level)); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

func (c *Client) property(name string) (any, error) {
	prop, err := c.object().GetProperty(mprisPlayerIface + "." + name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s property: %w", name, err)
	}
	value := prop.Value()
	if value == nil {
		return nil, fmt.Errorf("%s value is nil", name)
	}
	return value, nil
}

func (c *Client) Track() (track.Info, error) {
	value, err := c.property("Metadata")
	if err != nil {
		return track.Info{}, err
	}
	metadata, ok := value.(map[string]dbus.Variant)
	if !ok {
		return track.Info{}, fmt.Errorf("unexpected metadata type %T", value)
	}
	return ParseMetadata(metadata), nil
}

func (c *Client) Position() (time.Duration, error) {
	value, err := c.property("Position")
	if err != nil {
		return 0, err
	}
	positionMicroseconds, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected position type %T", value)
	}
	if positionMicroseconds < 0 {
		return 0, nil
	}
	return time.Duration(positionMicroseconds) * time.Microsecond, nil
}

// Status reads the player's properties. Optional properties a player does
// not implement are left at their zero value.
func (c *Client) Status() (RemoteStatus, error) {
	info, err := c.Track()
	if err != nil {
		return RemoteStatus{}, err
	}
	st := RemoteStatus{Track: info}

	if v, err := c.property("PlaybackStatus"); err == nil {
		st.Status, _ = v.(string)
	}
	if v, err := c.property("LoopStatus"); err == nil {
		st.Loop, _ = v.(string)
	}
	if v, err := c.property("Volume"); err == nil {
		st.Volume, _ = v.(float64)
	}
	if v, err := c.property("Rate"); err == nil {
		st.Rate, _ = v.(float64)
	}
	if pos, err := c.Position(); err == nil {
		st.Position = pos
	}
	return st, nil
}

// Follow reports property changes and seeks until ctx is done.
func (c *Client) Follow(ctx context.Context) (<-chan Change, error) {
	matches := []string{
		fmt.Sprintf(
			"type='signal',sender='%s',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path='%s'",
			c.service, mprisPath,
		),
		fmt.Sprintf(
			"type='signal',sender='%s',interface='%s',member='Seeked',path='%s'",
			c.service, mprisPlayerIface, mprisPath,
		),
	}
	for _, match := range matches {
		if err := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, match).Err; err != nil {
			return nil, fmt.Errorf("failed to add match: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 10)
	c.bus.Signal(signals)
	out := make(chan Change, 16)

	go func() {
		defer close(out)
		defer c.bus.RemoveSignal(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				for _, change := range parseSignal(sig) {
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func parseSignal(sig *dbus.Signal) []Change {
	if sig == nil {
		return nil
	}

	switch sig.Name {
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		return parsePropertiesChanged(sig.Body)
	case mprisPlayerIface + ".Seeked":
		if len(sig.Body) < 1 {
			return nil
		}
		positionMicroseconds, ok := sig.Body[0].(int64)
		if !ok || positionMicroseconds < 0 {
			return nil
		}
		return []Change{{Kind: ChangeSeeked, Position: time.Duration(positionMicroseconds) * time.Microsecond}}
	default:
		return nil
	}
}

func parsePropertiesChanged(body []any) []Change {
	if len(body) < 2 {
		return nil
	}
	interfaceName, ok := body[0].(string)
	if !ok || interfaceName != mprisPlayerIface {
		return nil
	}
	changed, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	var out []Change
	if v, exists := changed["Metadata"]; exists {
		if metadata, ok := v.Value().(map[string]dbus.Variant); ok {
			out = append(out, Change{Kind: ChangeTrack, Track: ParseMetadata(metadata)})
		}
	}
	if v, exists := changed["PlaybackStatus"]; exists {
		if status, ok := v.Value().(string); ok {
			out = append(out, Change{Kind: ChangePlayback, Status: status})
		}
	}
	if v, exists := changed["LoopStatus"]; exists {
		if status, ok := v.Value().(string); ok {
			out = append(out, Change{Kind: ChangeLoop, Loop: status})
		}
	}
	return out
}
