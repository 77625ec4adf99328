package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitReady(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		attempts   int
		wantErr    bool
		wantProbes int
	}{
		{"ready immediately", 0, 5, false, 1},
		{"ready on last attempt", 4, 5, false, 5},
		{"never ready", 5, 5, true, 5},
		{"fails more than attempts", 30, 5, true, 5},
		{"zero attempts probes once", 0, 0, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := 0
			hc := HealthCheckFunc(func(context.Context) bool {
				probes++
				return probes > tt.failures
			})
			clock := &fakeClock{instant: true}

			err := WaitReady(context.Background(), hc, ReadinessPolicy{
				Attempts: tt.attempts,
				Delay:    2 * time.Second,
				Clock:    clock,
				Logger:   testLogger(),
			})

			if tt.wantErr {
				if !errors.Is(err, ErrServerUnreachable) {
					t.Errorf("error = %v, want ErrServerUnreachable", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if probes != tt.wantProbes {
				t.Errorf("probes = %d, want %d", probes, tt.wantProbes)
			}

			clock.mu.Lock()
			defer clock.mu.Unlock()
			if len(clock.afters) != tt.wantProbes-1 {
				t.Errorf("delays = %d, want %d", len(clock.afters), tt.wantProbes-1)
			}
			for _, d := range clock.afters {
				if d != 2*time.Second {
					t.Errorf("delay = %v, want 2s", d)
				}
			}
		})
	}
}

func TestWaitReadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probes := 0
	hc := HealthCheckFunc(func(context.Context) bool {
		probes++
		return false
	})

	err := WaitReady(ctx, hc, ReadinessPolicy{Attempts: 5, Delay: time.Hour, Logger: testLogger()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if probes != 0 {
		t.Errorf("probes = %d, want 0", probes)
	}
}

func TestWaitReadyCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hc := HealthCheckFunc(func(context.Context) bool {
		cancel()
		return false
	})

	done := make(chan error, 1)
	go func() {
		done <- WaitReady(ctx, hc, ReadinessPolicy{Attempts: 5, Delay: time.Hour, Logger: testLogger()})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitReady ignored cancellation during delay")
	}
}
