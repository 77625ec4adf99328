package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/ollama"
	"github.com/smazurov/hearthtale/internal/process"
)

// errUnhealthy makes the health command exit 1 without extra output.
var errUnhealthy = errors.New("server is not healthy")

func newHealthCmd(opts *Options) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether a running server answers",
		Long: `health probes an already running server once, or with --wait polls it
using the serve readiness policy. Exit status is 0 when healthy.`,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), opts, wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the server is ready or attempts run out")
	return cmd
}

func runHealth(ctx context.Context, opts *Options, wait bool, out io.Writer) error {
	registry := newRegistry(opts, false)
	defer registry.Close()
	logger := registry.Logger("server")

	client := ollama.NewClient(clientConfig(opts, logger))
	fmt.Fprintf(out, "Checking server health at %s...\n", client.BaseURL())

	if wait {
		policy := readinessPolicy(opts, serveReadyAttempts, serveReadyDelay, logger)
		if err := process.WaitReady(ctx, client, policy); err != nil {
			fmt.Fprintf(out, "Server failed to respond to health checks: %v\n", err)
			return errUnhealthy
		}
	} else if !client.IsHealthy(ctx) {
		fmt.Fprintln(out, "Server is not healthy")
		return errUnhealthy
	}

	fmt.Fprintln(out, "Server is healthy!")
	models, err := client.ListModels(ctx)
	if err != nil {
		logger.Warn("Could not list models", "error", err)
		return nil
	}
	fmt.Fprintln(out, "Available models:")
	for _, m := range models {
		fmt.Fprintf(out, "  %s\n", m.Name)
	}
	return nil
}
