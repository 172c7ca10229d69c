package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/cache"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/track"
)

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "lyrics search and preview",
	Long:  `search lrclib for lyrics, which also caches them, or preview the lyrics of a library song.`,
}

var lyricsSearchCmd = &cobra.Command{
	Use:   "search <artist> <title>",
	Short: "search for lyrics on lrclib and cache them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := lyricsClient(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("searching for: %s - %s\n\n", args[0], args[1])

		ctx, cancel := context.WithTimeout(context.Background(), 2*config.HTTPTimeoutSeconds*time.Second)
		defer cancel()

		found, err := client.Fetch(ctx, track.Info{Artist: args[0], Title: args[1]})
		if err != nil {
			return fmt.Errorf("lyrics not found: %w", err)
		}

		printLyricsSummary(found)
		return nil
	},
}

var lyricsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "print the lyrics of a library song",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*config.HTTPTimeoutSeconds*time.Second)
		defer cancel()

		found, err := a.Lyrics(ctx, args[0])
		if err != nil {
			return err
		}

		printLyrics(found, a.SyncOffset(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lyricsCmd)

	lyricsCmd.AddCommand(lyricsSearchCmd)
	lyricsCmd.AddCommand(lyricsShowCmd)
}

// helper functions

func lyricsClient(cmd *cobra.Command) (*lyrics.Client, error) {
	cfg := loadConfig(cmd)
	logger, err := commandLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	c, err := cache.New[lyrics.Lyrics](cache.NamespaceLyrics, cache.LyricsTTL)
	if err != nil {
		logger.Warn("lyrics cache unavailable", "error", err)
		c = cache.Memory[lyrics.Lyrics](cache.LyricsTTL)
	}
	return lyrics.NewClient(cfg.LrclibURL, c, logger), nil
}

func printLyricsSummary(l *lyrics.Lyrics) {
	fmt.Printf("found lyrics:\n")
	fmt.Printf("  track:        %s\n", l.TrackName)
	fmt.Printf("  artist:       %s\n", l.ArtistName)
	if l.AlbumName != "" {
		fmt.Printf("  album:        %s\n", l.AlbumName)
	}
	if l.Duration > 0 {
		fmt.Printf("  duration:     %.0fs\n", l.Duration)
	}
	fmt.Printf("  instrumental: %v\n", l.Instrumental)

	if l.IsSynced() {
		fmt.Printf("  synced lines: %d\n", len(lyrics.ParseSynced(l.SyncedLyrics)))
	} else {
		fmt.Printf("  synced lines: none\n")
	}
	fmt.Printf("  plain lines:  %d\n", len(lyrics.ParsePlain(l.PlainLyrics)))
}

func printLyrics(l *lyrics.Lyrics, offset float64) {
	fmt.Printf("%s - %s\n", l.ArtistName, l.TrackName)
	if l.AlbumName != "" {
		fmt.Println(l.AlbumName)
	}
	fmt.Println(strings.Repeat("─", 60))

	switch {
	case l.Instrumental:
		fmt.Println("\n[instrumental]")
	case l.IsSynced():
		lines := lyrics.ParseSynced(l.SyncedLyrics)
		fmt.Printf("\nsynced lyrics (%d lines):\n\n", len(lines))
		for _, line := range lines {
			fmt.Printf("[%s] %s\n", formatTimestamp(line.TimeSeconds), line.Text)
		}
		if offset != 0 {
			fmt.Printf("\nsync offset: %+.1fs\n", offset)
		}
	case l.PlainLyrics != "":
		fmt.Print("\nplain lyrics (no timestamps):\n\n")
		fmt.Println(l.PlainLyrics)
	default:
		fmt.Println("\nno lyrics available")
	}
}

func formatTimestamp(seconds float64) string {
	minutes := int(seconds) / 60
	secs := seconds - float64(minutes*60)
	return fmt.Sprintf("%d:%05.2f", minutes, secs)
}
