package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HealthChecker probes whether the server accepts requests. It never fails;
// an unreachable server is simply not healthy.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) bool

// IsHealthy calls f.
func (f HealthCheckFunc) IsHealthy(ctx context.Context) bool { return f(ctx) }

// ReadinessPolicy is a fixed number of probes with a fixed delay between them.
type ReadinessPolicy struct {
	Attempts int
	Delay    time.Duration
	Clock    Clock        // default SystemClock
	Logger   *slog.Logger // default slog.Default()
}

// WaitReady probes hc until it reports healthy or the attempts run out, in
// which case it returns ErrServerUnreachable. Cancelling ctx stops the wait.
func WaitReady(ctx context.Context, hc HealthChecker, policy ReadinessPolicy) error {
	attempts := max(policy.Attempts, 1)
	clock := policy.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if hc.IsHealthy(ctx) {
			readinessProbes.WithLabelValues("ready").Inc()
			logger.Info("Server is ready", "attempt", attempt)
			return nil
		}
		readinessProbes.WithLabelValues("not_ready").Inc()
		logger.Debug("Server not ready yet", "attempt", attempt, "max_attempts", attempts)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(policy.Delay):
		}
	}

	logger.Error("Server did not become ready", "attempts", attempts)
	return newError(ErrCodeServerUnreachable,
		fmt.Sprintf("server not ready after %d attempts", attempts), nil)
}
