package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/logging"
	"karolbroda.com/resonance/internal/store"
)

var (
	// flags for library tag
	tagTitle     string
	tagArtist    string
	tagAlbum     string
	tagThumbnail string
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "manage songs in the library",
	Long:  `list, import, delete and tag the songs under the library's 'all songs' directory.`,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every song with its metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		songs, err := a.Songs(context.Background())
		if err != nil {
			return err
		}
		if len(songs) == 0 {
			fmt.Printf("no songs in %s\n", a.Library().SongsPath())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tARTIST\tDURATION")
		for _, s := range songs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Title, s.Artist, formatDuration(s.DurationSecs))
		}
		w.Flush()

		fmt.Printf("\ntotal: %d songs\n", len(songs))
		return nil
	},
}

var libraryImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "copy audio files into the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}

		var failed int
		for _, src := range args {
			id, err := lib.Import(src)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipped %s: %v\n", src, err)
				failed++
				continue
			}
			fmt.Printf("imported %s\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be imported", failed, len(args))
		}
		return nil
	},
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "delete a song and remove it from every playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		if err := lib.DeleteSong(args[0]); err != nil {
			return err
		}

		db, err := store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.DeleteTrack(args[0]); err != nil {
			slog.Warn("failed to drop stored metadata", "song", args[0], "error", err)
		}

		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var libraryTagCmd = &cobra.Command{
	Use:   "tag <id>",
	Short: "set a song's title, artist, album or thumbnail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Resolve(context.Background(), args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("title") {
			info.Title = tagTitle
		}
		if flags.Changed("artist") {
			info.Artist = tagArtist
		}
		if flags.Changed("album") {
			info.Album = tagAlbum
		}
		if flags.Changed("thumbnail") {
			info.Thumbnail = tagThumbnail
		}

		if err := a.UpdateTrack(info); err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", info.ID, info.Display())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(libraryCmd)

	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryImportCmd)
	libraryCmd.AddCommand(libraryDeleteCmd)
	libraryCmd.AddCommand(libraryTagCmd)

	libraryTagCmd.Flags().StringVar(&tagTitle, "title", "", "track title")
	libraryTagCmd.Flags().StringVar(&tagArtist, "artist", "", "track artist")
	libraryTagCmd.Flags().StringVar(&tagAlbum, "album", "", "album name")
	libraryTagCmd.Flags().StringVar(&tagThumbnail, "thumbnail", "", "artwork file or url")
}

// helper functions

// openApp builds the player for one-shot commands. Nothing is played, so no
// audio device is opened.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg := loadConfig(cmd)
	cfg.NoAudio = true

	logger, err := commandLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open player: %w", err)
	}
	return a, nil
}

func openLibrary(cmd *cobra.Command) (*library.Library, error) {
	cfg := loadConfig(cmd)
	logger, err := commandLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return library.Open(cfg.LibraryDir, logger)
}

// commandLogger keeps one-shot command output clean by logging to the file only.
func commandLogger(path, level string) (*slog.Logger, error) {
	logger, _, err := logging.Setup(path, level, false)
	return logger, err
}

func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	minutes := seconds / 60
	remaining := seconds % 60
	return fmt.Sprintf("%d:%02d", minutes, remaining)
}
