package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		Retries:    3,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    time.Second,
		Logger:     testLogger(),
	})
}

// closedURL returns a URL nothing listens on.
func closedURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr
}

func tagsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"models":[{"name":"llama3.2:latest","model":"llama3.2:latest","size":2019393189},{"name":"mistral:7b"}]}`)
}

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tags" || r.Method != http.MethodGet {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			if got := newTestClient(srv.URL).IsHealthy(context.Background()); got != tt.want {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHealthyUnreachable(t *testing.T) {
	if newTestClient(closedURL(t)).IsHealthy(context.Background()) {
		t.Error("IsHealthy() = true for a closed port")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(tagsHandler))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].Name != "llama3.2:latest" || models[0].Size != 2019393189 {
		t.Errorf("models = %+v", models)
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(tagsHandler))
	defer srv.Close()
	c := newTestClient(srv.URL)

	tests := []struct {
		name string
		want bool
	}{
		{"llama3.2:latest", true},
		{"llama3.2", true},
		{"mistral:7b", true},
		{"mistral", false},
		{"phi3", false},
	}
	for _, tt := range tests {
		got, err := c.HasModel(context.Background(), tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("HasModel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req["model"] != "llama3.2:latest" || req["prompt"] != "Start the adventure." || req["stream"] != false {
			t.Errorf("body = %v", req)
		}
		if _, ok := req["system"]; ok {
			t.Error("empty system should be omitted")
		}
		_, _ = io.WriteString(w, `{"model":"llama3.2:latest","response":"You wake in a tavern.","done":true,"eval_count":12}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Generate(context.Background(), GenerateRequest{
		Model:  "llama3.2:latest",
		Prompt: "Start the adventure.",
		Stream: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "You wake in a tavern." || !resp.Done || resp.EvalCount != 12 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGenerateRetriesDroppedConnections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
			return
		}
		_, _ = io.WriteString(w, `{"response":"third time lucky","done":true}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Response != "third time lucky" {
		t.Errorf("response = %q", resp.Response)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGenerateConnectionErrorAfterRetries(t *testing.T) {
	_, err := newTestClient(closedURL(t)).Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v (%T), want *ConnectionError", err, err)
	}
	if connErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", connErr.Attempts)
	}
}

func TestGenerateStatusErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), GenerateRequest{Model: "nope", Prompt: "p"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", statusErr.StatusCode)
	}
	if want := `server returned 404: model "nope" not found, try pulling it first`; statusErr.Error() != want {
		t.Errorf("Error() = %q, want %q", statusErr.Error(), want)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGenerateTimeoutNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RetryDelay: 10 * time.Millisecond, Timeout: 50 * time.Millisecond, Logger: testLogger()})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		t.Errorf("timeout reported as connection error: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(closedURL(t)).Generate(ctx, GenerateRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:11434/"})
	if c.BaseURL() != "http://localhost:11434" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.http.RetryMax != 2 {
		t.Errorf("RetryMax = %d, want 2", c.http.RetryMax)
	}
	if c.http.HTTPClient.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.http.HTTPClient.Timeout)
	}
	if d := c.http.Backoff(c.http.RetryWaitMin, c.http.RetryWaitMax, 2, nil); d != 2*time.Second {
		t.Errorf("backoff = %v, want fixed 2s", d)
	}
}
