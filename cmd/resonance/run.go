package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"karolbroda.com/resonance/internal/app"
	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/control"
	"karolbroda.com/resonance/internal/logging"
	"karolbroda.com/resonance/internal/mpris"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/ui"
)

const uiEventBuffer = 64

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the interactive player",
	Long:  `starts the terminal player with the library, the grouped queue and synchronized lyrics.`,
	RunE:  runPlayer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPlayer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	cfg := loadConfig(cmd)

	// the terminal belongs to the ui, so logs only go to the file
	logger, closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}
	defer a.Close()

	events := make(chan app.Event, uiEventBuffer)
	a.Subscribe(forwardEvents(events))

	stopIntegrations := startIntegrations(ctx, cfg, a, cancel, logger)
	defer stopIntegrations()

	go func() {
		if err := a.Run(ctx); err != nil {
			logger.Error("player stopped", "error", err)
		}
	}()

	model := ui.NewModel(ui.ModelConfig{
		Player:     a,
		Events:     events,
		HideHeader: cfg.HideHeader,

		KittyGraphics: cfg.KittyGraphics,
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running bubble tea: %w", err)
	}

	return nil
}

// forwardEvents hands app events to the ui without ever blocking the app.
// Position ticks are dropped since the ui polls status on its own tick.
func forwardEvents(events chan<- app.Event) func(app.Event) {
	return func(ev app.Event) {
		if ev.Kind == app.EventPlayback && ev.Playback.Kind == player.EventPositionChanged {
			return
		}
		select {
		case events <- ev:
		default:
		}
	}
}

// startIntegrations exports the player on the session bus and serves the
// control api when configured. Failures are logged; the player still runs.
func startIntegrations(ctx context.Context, cfg *config.Config, p *app.App, quit func(), logger *slog.Logger) func() {
	var stops []func()

	if cfg.Mpris {
		if stop, err := startMpris(ctx, p, quit, logger); err != nil {
			logger.Warn("mpris unavailable", "error", err)
		} else {
			stops = append(stops, stop)
		}
	}

	if cfg.Listen != "" {
		srv := control.NewServer(p, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
				logger.Error("control api stopped", "addr", cfg.Listen, "error", err)
			}
		}()
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func startMpris(ctx context.Context, p *app.App, quit func(), logger *slog.Logger) (func(), error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	srv, err := mpris.Serve(ctx, bus, config.DefaultMprisService, p, quit, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}

	return func() {
		srv.Close()
		bus.Close()
	}, nil
}
