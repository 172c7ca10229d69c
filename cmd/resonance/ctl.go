package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/mpris"
)

var ctlService string

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "control an mpris player",
	Long: `sends mpris commands over the session bus. by default it drives
resonance itself; --service points it at any other player.`,
}

var ctlListCmd = &cobra.Command{
	Use:   "list",
	Short: "list available mpris players",
	RunE: func(cmd *cobra.Command, args []string) error {
		bus, err := dbus.ConnectSessionBus()
		if err != nil {
			return fmt.Errorf("failed to connect to session bus: %w", err)
		}
		defer bus.Close()

		var names []string
		err = bus.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
		if err != nil {
			return fmt.Errorf("failed to list dbus names: %w", err)
		}

		var found int
		for _, name := range names {
			if !strings.HasPrefix(name, "org.mpris.MediaPlayer2.") {
				continue
			}
			found++
			if identity := getPlayerIdentity(bus, name); identity != "" {
				fmt.Printf("  %s (%s)\n", name, identity)
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		if found == 0 {
			fmt.Println("no mpris players found")
		}
		return nil
	},
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the player's track and state",
	RunE: withMpris(func(c *mpris.Client, args []string) error {
		st, err := c.Status()
		if err != nil {
			return err
		}
		if !st.Track.IsValid() && st.Track.Title == "" {
			fmt.Printf("state:    %s (no track)\n", st.Status)
			return nil
		}
		fmt.Printf("title:    %s\n", st.Track.Title)
		fmt.Printf("artist:   %s\n", st.Track.Artist)
		if st.Track.Album != "" {
			fmt.Printf("album:    %s\n", st.Track.Album)
		}
		fmt.Printf("state:    %s\n", st.Status)
		fmt.Printf("position: %s / %s\n", formatDuration(int64(st.Position.Seconds())), formatDuration(st.Track.DurationSecs))
		if st.Loop != "" {
			fmt.Printf("loop:     %s\n", st.Loop)
		}
		if st.Rate != 0 {
			fmt.Printf("rate:     %.2gx\n", st.Rate)
		}
		fmt.Printf("volume:   %.0f%%\n", st.Volume*100)
		return nil
	}),
}

var ctlSeekCmd = &cobra.Command{
	Use:   "seek <seconds>",
	Short: "seek relative to the current position, e.g. 10 or -5",
	Args:  cobra.ExactArgs(1),
	RunE: withMpris(func(c *mpris.Client, args []string) error {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid offset %q", args[0])
		}
		return c.Seek(time.Duration(secs * float64(time.Second)))
	}),
}

var ctlLoopCmd = &cobra.Command{
	Use:   "loop <None|Track|Playlist>",
	Short: "set the mpris loop status",
	Args:  cobra.ExactArgs(1),
	RunE: withMpris(func(c *mpris.Client, args []string) error {
		return c.SetLoopStatus(args[0])
	}),
}

var ctlVolumeCmd = &cobra.Command{
	Use:   "volume <0..1>",
	Short: "set the player volume",
	Args:  cobra.ExactArgs(1),
	RunE: withMpris(func(c *mpris.Client, args []string) error {
		level, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q", args[0])
		}
		return c.SetVolume(level)
	}),
}

var ctlFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "print track, state and loop changes as they happen",
	RunE: withMpris(func(c *mpris.Client, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		changes, err := c.Follow(ctx)
		if err != nil {
			return err
		}
		for change := range changes {
			switch change.Kind {
			case mpris.ChangeTrack:
				fmt.Printf("track    %s\n", change.Track.Display())
			case mpris.ChangePlayback:
				fmt.Printf("status   %s\n", change.Status)
			case mpris.ChangeLoop:
				fmt.Printf("loop     %s\n", change.Loop)
			case mpris.ChangeSeeked:
				fmt.Printf("seeked   %s\n", formatDuration(int64(change.Position.Seconds())))
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ctlCmd)

	ctlCmd.PersistentFlags().StringVar(&ctlService, "service", config.DefaultMprisService, "mpris service to control")

	ctlCmd.AddCommand(ctlListCmd)
	ctlCmd.AddCommand(ctlStatusCmd)
	ctlCmd.AddCommand(ctlSeekCmd)
	ctlCmd.AddCommand(ctlLoopCmd)
	ctlCmd.AddCommand(ctlVolumeCmd)
	ctlCmd.AddCommand(ctlFollowCmd)

	simple := map[string]func(*mpris.Client) error{
		"play-pause": (*mpris.Client).PlayPause,
		"play":       (*mpris.Client).Play,
		"pause":      (*mpris.Client).Pause,
		"stop":       (*mpris.Client).Stop,
		"next":       (*mpris.Client).Next,
		"previous":   (*mpris.Client).Previous,
	}
	for name, call := range simple {
		ctlCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "send " + name + " to the player",
			Args:  cobra.NoArgs,
			RunE: withMpris(func(c *mpris.Client, args []string) error {
				return call(c)
			}),
		})
	}
}

// helper functions

func withMpris(fn func(c *mpris.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := mpris.Dial(ctlService)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(c, args)
	}
}

func getPlayerIdentity(bus *dbus.Conn, serviceName string) string {
	obj := bus.Object(serviceName, "/org/mpris/MediaPlayer2")
	variant, err := obj.GetProperty("org.mpris.MediaPlayer2.Identity")
	if err != nil {
		return ""
	}

	identity, ok := variant.Value().(string)
	if !ok {
		return ""
	}

	return identity
}
