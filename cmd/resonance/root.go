package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/config"
)

var (
	// global flags
	libraryDir string
	dataDir    string
	listenAddr string
	lrclibURL  string
	logFile    string
	logLevel   string
	noAudio    bool
	noMpris    bool
	syncOffset float64
	hideHeader bool
)

var rootCmd = &cobra.Command{
	Use:   "resonance",
	Short: "terminal music player with playlist groups and loudness normalization",
	Long: `resonance plays a local music library from the terminal.
playlists are queued as collapsible groups, loudness is normalized between
tracks, and synchronized lyrics follow playback.

when run without a subcommand, it starts the interactive player.`,
	Version: "1.0.0",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&libraryDir, "library", "L", "", "library root holding 'all songs' and 'playlists'")
	flags.StringVar(&dataDir, "data-dir", "", "directory for the preferences database")
	flags.StringVarP(&listenAddr, "listen", "l", "", "serve the control api on this address")
	flags.StringVar(&lrclibURL, "lrclib-url", "", "custom lrclib api url")
	flags.StringVar(&logFile, "log-file", "", "log file path")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&noAudio, "no-audio", false, "decode and time tracks without opening an audio device")
	flags.BoolVar(&noMpris, "no-mpris", false, "do not register on the session bus")
	flags.Float64VarP(&syncOffset, "sync-offset", "s", 0, "global lyrics sync offset in seconds")
	flags.BoolVarP(&hideHeader, "hide-header", "H", false, "hide the now playing header")
}

// loadConfig reads the environment, then applies any flag the user set.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()

	if libraryDir != "" {
		cfg.LibraryDir = libraryDir
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if lrclibURL != "" {
		cfg.LrclibURL = lrclibURL
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("no-audio") {
		cfg.NoAudio = noAudio
	}
	if cmd.Flags().Changed("no-mpris") {
		cfg.Mpris = !noMpris
	}
	if cmd.Flags().Changed("sync-offset") {
		cfg.SyncOffset = syncOffset
	}
	if cmd.Flags().Changed("hide-header") {
		cfg.HideHeader = hideHeader
	}

	return cfg
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
