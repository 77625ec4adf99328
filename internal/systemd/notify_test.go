package systemd

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestNotifierSendsStates(t *testing.T) {
	var sent []string
	n := &Notifier{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify: func(state string) (bool, error) {
			sent = append(sent, state)
			return true, nil
		},
	}

	n.Status("waiting for server")
	n.Ready()
	n.Stopping()

	want := []string{"STATUS=waiting for server", "READY=1", "STOPPING=1"}
	if len(sent) != len(want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, sent[i], want[i])
		}
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := NewNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Ready()
}

func TestNotifierErrorIsLogged(_ *testing.T) {
	n := &Notifier{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify: func(string) (bool, error) { return false, errors.New("socket gone") },
	}
	n.Ready()
}
