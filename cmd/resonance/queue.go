package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/control"
	"karolbroda.com/resonance/internal/queue"
)

const remoteTimeout = 15 * time.Second

var (
	// flags for queue playlist
	groupPlayNow  bool
	groupShuffle  bool
	groupExpanded bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "drive a running player's queue over the control api",
	Long: `talks to a player started with --listen or 'resonance serve'.
positions are the 1-based numbers 'resonance queue list' prints.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "show the queue with its playlist groups",
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		q, err := r.Queue(ctx)
		if err != nil {
			return err
		}
		if q.TotalTracks == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		for _, b := range q.Blocks {
			indent := ""
			if b.Group != nil {
				state := "expanded"
				if b.Collapsed {
					state = "collapsed"
				}
				fmt.Printf("%s (%s#%d, %d tracks, %s, %s)\n",
					b.Label, b.Group.Playlist, b.Group.Instance, len(b.Rows), formatDuration(b.DurationSecs), state)
				indent = "  "
			}
			for _, row := range b.Rows {
				marker := " "
				if row.Current {
					marker = ">"
				}
				fmt.Printf("%s%s %3d  %s  %s\n", indent, marker, row.Index+1, row.Track.Display(), formatDuration(row.Track.DurationSecs))
			}
		}

		fmt.Printf("\n%d tracks, %s, loop %s\n", q.TotalTracks, formatDuration(q.TotalDurationSecs), q.Loop)
		return nil
	}),
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "show what is playing",
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		st, err := r.Status(ctx)
		if err != nil {
			return err
		}
		if st.Track == nil {
			fmt.Printf("state:         %s (nothing queued)\n", st.State)
			return nil
		}
		fmt.Printf("track:         %s\n", st.Track.Display())
		fmt.Printf("state:         %s\n", st.State)
		fmt.Printf("position:      %s / %s\n", formatDuration(int64(st.Position)), formatDuration(int64(st.Duration)))
		fmt.Printf("queue:         %d of %d\n", st.Cursor+1, st.QueueLength)
		fmt.Printf("volume:        %.0f%% (muted: %v)\n", st.Volume*100, st.Muted)
		fmt.Printf("speed:         %.2gx\n", st.Speed)
		fmt.Printf("loop:          %s\n", st.Loop)
		fmt.Printf("normalization: %v (gain %.2f)\n", st.Normalization, st.Gain)
		return nil
	}),
}

var queueAddCmd = &cobra.Command{
	Use:   "add <id>...",
	Short: "append songs to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		for _, id := range args {
			index, err := r.Enqueue(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Printf("queued %s at %d\n", id, index+1)
		}
		return nil
	}),
}

var queuePlaylistCmd = &cobra.Command{
	Use:   "playlist <name>",
	Short: "append a playlist as one group",
	Args:  cobra.ExactArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		g, err := r.EnqueuePlaylist(ctx, args[0], queue.GroupOptions{
			PlayNow:  groupPlayNow,
			Shuffle:  groupShuffle,
			Expanded: groupExpanded,
		})
		if err != nil {
			return err
		}
		fmt.Printf("queued %s as group %s#%d\n", args[0], g.Playlist, g.Instance)
		return nil
	}),
}

var queuePlayCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "replace the queue with one song and play it",
	Args:  cobra.ExactArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		return r.PlayNow(ctx, args[0])
	}),
}

var queueJumpCmd = &cobra.Command{
	Use:   "jump <position>",
	Short: "play the entry at a queue position",
	Args:  cobra.ExactArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		index, err := parsePosition(args[0])
		if err != nil {
			return err
		}
		return r.JumpTo(ctx, index)
	}),
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <position>",
	Short: "remove the entry at a queue position",
	Args:  cobra.ExactArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		index, err := parsePosition(args[0])
		if err != nil {
			return err
		}
		return r.Remove(ctx, index)
	}),
}

var queueMoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "move an entry; moves that would split a playlist group are refused",
	Args:  cobra.ExactArgs(2),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		from, err := parsePosition(args[0])
		if err != nil {
			return err
		}
		to, err := parsePosition(args[1])
		if err != nil {
			return err
		}
		return r.Move(ctx, from, to)
	}),
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "empty the queue and stop playback",
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		return r.Clear(ctx)
	}),
}

var queueToggleCmd = &cobra.Command{
	Use:   "toggle <playlist> <instance>",
	Short: "collapse or expand a playlist group",
	Args:  cobra.ExactArgs(2),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		instance, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid group instance %q", args[1])
		}
		collapsed, err := r.ToggleGroup(ctx, control.GroupDTO{Playlist: args[0], Instance: instance})
		if err != nil {
			return err
		}
		if collapsed {
			fmt.Println("collapsed")
		} else {
			fmt.Println("expanded")
		}
		return nil
	}),
}

var queueLoopCmd = &cobra.Command{
	Use:   "loop [off|repeat-all|repeat-one]",
	Short: "set the loop mode, or cycle it when no mode is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
		var mode *queue.LoopMode
		if len(args) == 1 {
			parsed, err := queue.ParseLoopMode(args[0])
			if err != nil {
				return err
			}
			mode = &parsed
		}
		current, err := r.Loop(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Printf("loop %s\n", current)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queuePlaylistCmd)
	queueCmd.AddCommand(queuePlayCmd)
	queueCmd.AddCommand(queueJumpCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueMoveCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueToggleCmd)
	queueCmd.AddCommand(queueLoopCmd)

	for _, name := range []string{"toggle", "next", "previous", "stop", "mute"} {
		queueCmd.AddCommand(transportCommand(name))
	}

	queuePlaylistCmd.Flags().BoolVar(&groupPlayNow, "play", false, "replace the queue and start the group")
	queuePlaylistCmd.Flags().BoolVar(&groupShuffle, "shuffle", false, "shuffle the group's tracks")
	queuePlaylistCmd.Flags().BoolVar(&groupExpanded, "expanded", false, "show the group expanded")
}

func transportCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: name + " playback",
		Args:  cobra.NoArgs,
		RunE: withRemote(func(ctx context.Context, r *control.Remote, args []string) error {
			return r.Command(ctx, name)
		}),
	}
}

// withRemote runs fn against the player's control api address.
func withRemote(fn func(ctx context.Context, r *control.Remote, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		addr := cfg.Listen
		if addr == "" {
			addr = config.DefaultServeListen
		}

		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		return fn(ctx, control.NewRemote(addr), args)
	}
}

// parsePosition turns a 1-based queue position into an index.
func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid queue position %q", s)
	}
	return n - 1, nil
}
