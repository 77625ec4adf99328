// Package process manages the lifecycle of a single external server process.
//
// A Manager launches the server, checks that it survived its warm-up, drains
// its stdout/stderr into a logger and tears it down on exit:
//   - Pre-flight checks for a resolvable executable and a free service port
//   - Stop signal to the whole process group, SIGKILL after a grace period
//   - Output streaming with pluggable log parsing and a recent-output tail
//   - Scoped acquisition via Run, which always stops the server before returning
//
// Readiness is a caller concern. WaitReady polls a HealthChecker with a fixed
// number of attempts and a fixed delay.
//
// Example:
//
//	m := process.NewManager(process.Options{
//	    Executable: "ollama",
//	    Args:       []string{"serve"},
//	    Port:       11434,
//	    Logger:     registry.Logger("server"),
//	})
//	err := m.Run(ctx, func(ctx context.Context) error {
//	    if err := process.WaitReady(ctx, client, process.ReadinessPolicy{Attempts: 5, Delay: 2 * time.Second}); err != nil {
//	        return err
//	    }
//	    return play(ctx)
//	})
//
// All waits go through a Clock so tests can run without wall-clock delays.
package process
