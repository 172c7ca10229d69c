package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the player headless",
	Long: `runs the player without a terminal ui. control it through the http api,
the websocket feed or any mpris client such as playerctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg := loadConfig(cmd)
		if cfg.Listen == "" {
			cfg.Listen = config.DefaultServeListen
		}

		logger, closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel, true)
		if err != nil {
			return err
		}
		defer closer.Close()

		a, err := app.New(cfg, logger, app.Options{})
		if err != nil {
			return fmt.Errorf("failed to start player: %w", err)
		}
		defer a.Close()

		stopIntegrations := startIntegrations(ctx, cfg, a, cancel, logger)
		defer stopIntegrations()

		logger.Info("serving", "addr", cfg.Listen, "mpris", cfg.Mpris)
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
