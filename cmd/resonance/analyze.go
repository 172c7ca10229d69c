package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/gain"
	"karolbroda.com/resonance/internal/track"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [id]...",
	Short: "measure song loudness ahead of playback",
	Long: `samples each song and stores its loudness estimate, so normalization
has a value ready the first time the song plays. with no ids, every song in
the library is measured. songs already measured are read from the cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ids := args
		if len(ids) == 0 {
			songs, err := a.Songs(ctx)
			if err != nil {
				return err
			}
			ids = lo.Map(songs, func(s track.Info, _ int) string { return s.ID })
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLOUDNESS\tGAIN VS -20 dB")

		var failed int
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			db, err := a.Loudness(ctx, id)
			if err != nil {
				fmt.Fprintf(w, "%s\t-\t%v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(w, "%s\t%.1f dB\t%.2f\n", id, db, gain.Compute(-20, db))
		}
		w.Flush()

		if failed > 0 {
			return fmt.Errorf("%d of %d songs could not be measured", failed, len(ids))
		}
		return ctx.Err()
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
