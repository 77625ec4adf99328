package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/config"
	"github.com/smazurov/hearthtale/internal/events"
	"github.com/smazurov/hearthtale/internal/game"
	"github.com/smazurov/hearthtale/internal/ollama"
	"github.com/smazurov/hearthtale/internal/process"
)

func newPlayCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Start the server and play (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runPlay owns the server for the duration of one game. Interrupting ctx is
// a normal exit; anything that stops the game from starting is returned.
func runPlay(ctx context.Context, opts *Options, in io.Reader, out io.Writer) error {
	registry := newRegistry(opts, false)
	defer registry.Close()

	serverLog := registry.Logger("server")
	gameLog := registry.Logger("game")
	bus := events.New()
	console := game.NewRenderer(out)

	fromFile, err := loadGameSection(opts.Config)
	if err != nil {
		gameLog.Warn("Ignoring [game] table", "error", err)
	}
	settings := gameSettings(opts, fromFile)

	client := ollama.NewClient(clientConfig(opts, serverLog))
	manager := process.NewManager(managerOptions(opts, serverLog, bus))

	session := game.NewSession(game.Options{
		Settings:  settings,
		Generator: client,
		In:        in,
		Out:       out,
		Logger:    gameLog,
		Bus:       bus,
		OnConnectionLost: func(ctx context.Context) error {
			return manager.EnsureRunning(ctx, client)
		},
	})

	console.Info("Starting server...")
	err = manager.Run(ctx, func(ctx context.Context) error {
		console.Info("Checking server health...")
		policy := readinessPolicy(opts, playReadyAttempts, playReadyDelay, serverLog)
		if err := waitReady(ctx, client, policy, bus); err != nil {
			return err
		}
		console.Info("Server is healthy!")

		checkModel(ctx, client, settings.Model, serverLog, console)

		stopWatch := watchGameSettings(ctx, opts.Config, session, gameLog)
		defer stopWatch()

		return session.Play(ctx)
	})

	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		serverLog.Info("Interrupted, server stopped")
		return nil
	}
	if err != nil {
		serverLog.Error("Game could not run", "error", err)
		console.Error("Fatal error: " + err.Error())
	}
	return err
}

// checkModel warns when the configured model is not installed. The game
// still starts; the server reports the missing model on the first turn.
func checkModel(ctx context.Context, client *ollama.Client, model string, logger *slog.Logger, console *game.Renderer) {
	ok, err := client.HasModel(ctx, model)
	switch {
	case err != nil:
		logger.Warn("Could not list models", "error", err)
	case !ok:
		logger.Warn("Model not installed", "model", model)
		console.Error("Model " + model + " is not installed on the server.")
	default:
		logger.Info("Model available", "model", model)
	}
}

// watchGameSettings hot-reloads the [game] table into session. It returns a
// stop function; without a config file it does nothing.
func watchGameSettings(ctx context.Context, path string, session *game.Session, logger *slog.Logger) func() {
	if path == "" {
		return func() {}
	}

	watcher := config.NewConfigWatcher(path, loadGameSection, logger,
		config.WithErrorHandler[game.Settings](func(err error) {
			logger.Warn("Failed to reload game settings", "error", err)
		}),
	)
	watcher.OnReload(func(fromFile game.Settings) {
		session.UpdateSettings(reloadedSettings(session.Settings(), fromFile))
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Debug("Game settings will not reload", "path", path, "error", err)
		return func() {}
	}
	return func() {
		if err := watcher.Stop(); err != nil {
			logger.Debug("Failed to stop config watcher", "error", err)
		}
	}
}
