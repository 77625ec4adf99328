package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/api"
	"github.com/smazurov/hearthtale/internal/events"
	"github.com/smazurov/hearthtale/internal/logging"
	"github.com/smazurov/hearthtale/internal/ollama"
	"github.com/smazurov/hearthtale/internal/process"
	"github.com/smazurov/hearthtale/internal/systemd"
)

func newServeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the managed server with the status API, without the game",
		Long: `serve keeps the inference server running until interrupted and exposes
its state, output, logs and metrics over HTTP. Under systemd it reports
readiness with sd_notify.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *Options) error {
	registry := newRegistry(opts, true)
	defer registry.Close()

	bus := events.New()

	// Set before any logger exists so every module streams to /api/logs/stream.
	var seq atomic.Uint64
	registry.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Seq:        seq.Add(1),
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})

	serverLog := registry.Logger("server")
	apiLog := registry.Logger("api")
	notifier := systemd.NewNotifier(serverLog)

	client := ollama.NewClient(clientConfig(opts, serverLog))
	manager := process.NewManager(managerOptions(opts, serverLog, bus))

	server := api.NewServer(api.Options{
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		Server:            manager,
		Health:            client,
		Logs:              registry.Buffer(),
		EventBus:          bus,
		PrometheusHandler: promhttp.Handler(),
		Logger:            apiLog,
	})
	defer func() {
		if err := server.Stop(); err != nil {
			apiLog.Error("Error stopping API server", "error", err)
		}
	}()

	notifier.Status("Starting inference server")
	err := manager.Run(ctx, func(ctx context.Context) error {
		notifier.Status("Waiting for inference server")
		policy := readinessPolicy(opts, serveReadyAttempts, serveReadyDelay, serverLog)
		if err := waitReady(ctx, client, policy, bus); err != nil {
			notifier.Status("Inference server unreachable")
			return err
		}

		apiErr := make(chan error, 1)
		go func() {
			apiErr <- server.Start(opts.ListenAddr)
		}()

		notifier.Ready()
		notifier.Status(fmt.Sprintf("Serving %s, API on %s", manager.Address(), opts.ListenAddr))

		select {
		case <-ctx.Done():
			notifier.Stopping()
			return ctx.Err()
		case err := <-apiErr:
			if err == nil {
				return nil
			}
			return fmt.Errorf("api server: %w", err)
		}
	})

	if errors.Is(err, context.Canceled) {
		serverLog.Info("Interrupted, server stopped")
		return nil
	}
	return err
}
