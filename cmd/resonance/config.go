package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/cache"
	"karolbroda.com/resonance/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration",
	Long:  `prints the settings resolved from the environment and flags, and where each store lives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)

		listen := cfg.Listen
		if listen == "" {
			listen = "(off; serve uses " + config.DefaultServeListen + ")"
		}
		cacheDir, err := cache.Dir()
		if err != nil {
			cacheDir = "unavailable: " + err.Error()
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "library\t%s\n", cfg.LibraryDir)
		fmt.Fprintf(w, "data dir\t%s\n", cfg.DataDir)
		fmt.Fprintf(w, "cache dir\t%s\n", cacheDir)
		fmt.Fprintf(w, "log file\t%s\n", cfg.LogFile)
		fmt.Fprintf(w, "log level\t%s\n", cfg.LogLevel)
		fmt.Fprintf(w, "control api\t%s\n", listen)
		fmt.Fprintf(w, "mpris\t%v (%s)\n", cfg.Mpris, config.DefaultMprisService)
		fmt.Fprintf(w, "audio\t%v\n", !cfg.NoAudio)
		fmt.Fprintf(w, "sample rate\t%d\n", cfg.SampleRate)
		fmt.Fprintf(w, "lrclib\t%s\n", cfg.LrclibURL)
		fmt.Fprintf(w, "sync offset\t%+.1fs\n", cfg.SyncOffset)
		fmt.Fprintf(w, "hide header\t%v\n", cfg.HideHeader)
	fmt.Fprintf(w, "kitty graphics\t%v\n", cfg.KittyGraphics)
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
