package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[testConfig]) *Watcher[testConfig] {
	t.Helper()
	opts = append([]WatcherOption[testConfig]{WithDebounce[testConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	time.Sleep(50 * time.Millisecond)
	return w
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeFile(t, "config.toml", "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) { received <- cfg })

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_RenameOverFile(t *testing.T) {
	path := writeFile(t, "config.toml", "name = \"initial\"\n")

	received := make(chan testConfig, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) {
		select {
		case received <- cfg:
		default:
		}
	})

	tmp := filepath.Join(filepath.Dir(path), "config.toml.swp")
	if err := os.WriteFile(tmp, []byte("name = \"renamed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "renamed" {
			t.Errorf("got %+v, want name=renamed", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload after rename")
	}
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeFile(t, "config.toml", "name = \"initial\"\n")

	var calls atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(testConfig) { calls.Add(1) })

	sibling := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(sibling, []byte("name = \"other\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for a sibling file", n)
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 0\n")

	var calls atomic.Int32
	last := make(chan testConfig, 10)
	w := startWatcher(t, path, WithDebounce[testConfig](150*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		calls.Add(1)
		last <- cfg
	})

	for i := 1; i <= 5; i++ {
		content := []byte("value = " + string(rune('0'+i)) + "\n")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case cfg := <-last:
		if cfg.Value != 5 {
			t.Errorf("debounced value = %d, want 5", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for debounced reload")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 1\n")

	var removed atomic.Int32
	kept := make(chan struct{}, 1)
	w := startWatcher(t, path)
	unsub := w.OnReload(func(testConfig) { removed.Add(1) })
	w.OnReload(func(testConfig) { kept <- struct{}{} })
	unsub()

	if err := os.WriteFile(path, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for remaining handler")
	}
	if n := removed.Load(); n != 0 {
		t.Errorf("unsubscribed handler called %d times", n)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 1\n")

	errs := make(chan error, 1)
	w := startWatcher(t, path, WithErrorHandler[testConfig](func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	w.OnReload(func(testConfig) { t.Error("handler should not run for invalid config") })

	if err := os.WriteFile(path, []byte("value = [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected a load error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_StopTwice(t *testing.T) {
	path := writeFile(t, "config.toml", "value = 1\n")

	w := NewConfigWatcher(path, loadTestConfig, newTestLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestConfigWatcher_StartMissingDir(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "config.toml"), loadTestConfig, newTestLogger())
	if err := w.Start(context.Background()); err == nil {
		_ = w.Stop()
		t.Fatal("expected error watching a missing directory")
	}
}

func TestConfigWatcher_LoaderError(t *testing.T) {
	w := NewConfigWatcher("x.toml", func(string) (testConfig, error) {
		return testConfig{}, errors.New("boom")
	}, newTestLogger())

	var got error
	w.onError = func(err error) { got = err }
	w.loadAndNotify()

	if got == nil || got.Error() != "boom" {
		t.Errorf("onError got %v, want boom", got)
	}
}
