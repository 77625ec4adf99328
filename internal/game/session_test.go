package game

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/hearthtale/internal/events"
	"github.com/smazurov/hearthtale/internal/ollama"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGenerator replies from a script of results and records requests.
type fakeGenerator struct {
	mu       sync.Mutex
	results  []fakeResult
	requests []ollama.GenerateRequest
}

type fakeResult struct {
	text string
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.results) == 0 {
		return &ollama.GenerateResponse{Response: "The wind howls."}, nil
	}
	r := g.results[0]
	g.results = g.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &ollama.GenerateResponse{Response: r.text}, nil
}

func (g *fakeGenerator) Requests() []ollama.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ollama.GenerateRequest(nil), g.requests...)
}

func newTestSession(gen Generator, in string, out io.Writer) *Session {
	return NewSession(Options{
		Generator: gen,
		In:        strings.NewReader(in),
		Out:       out,
		Logger:    testLogger(),
	})
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt(Settings{Genre: "noir", Theme: "betrayal", Setting: "rain-soaked city"})

	if !strings.Contains(p, "The tone should be noir with elements of betrayal.") {
		t.Error("genre/theme not substituted")
	}
	if !strings.Contains(p, "Current setting: rain-soaked city") {
		t.Error("setting not substituted")
	}
	for _, placeholder := range []string{"[GENRE]", "[THEME]", "[SETTING]"} {
		if strings.Contains(p, placeholder) {
			t.Errorf("placeholder %s left in prompt", placeholder)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := Settings{}.withDefaults()
	if s.Model != "llama3.2:latest" || s.Genre != "fantasy" || s.Theme != "adventure" || s.Setting != "medieval kingdom" || s.WrapWidth != 80 {
		t.Errorf("defaults = %+v", s)
	}
	if s.generateOptions() != nil {
		t.Error("no temperature should send no options")
	}

	temp := 0.7
	s.Temperature = &temp
	if got := s.generateOptions()["temperature"]; got != 0.7 {
		t.Errorf("temperature option = %v", got)
	}
}

func TestStartSendsOpeningPrompt(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{text: "You stand at the gate."}}}
	var out bytes.Buffer
	s := newTestSession(gen, "", &out)

	s.Start(context.Background())

	reqs := gen.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	want := SystemPrompt(DefaultSettings()) + "\n" + OpeningInput
	if reqs[0].Prompt != want {
		t.Errorf("prompt = %q, want %q", reqs[0].Prompt, want)
	}
	if reqs[0].Model != "llama3.2:latest" || reqs[0].Stream {
		t.Errorf("request = %+v", reqs[0])
	}

	history := s.History()
	if len(history) != 3 || history[0].Role != RoleSystem || history[1].Content != OpeningInput || history[2].Content != "You stand at the gate." {
		t.Errorf("history = %+v", history)
	}
	if !strings.Contains(out.String(), "You stand at the gate.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRespondJoinsHistory(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{text: "A"}, {text: "B"}}}
	s := newTestSession(gen, "", io.Discard)
	s.Start(context.Background())

	reply, ok := s.Respond(context.Background(), "look around")
	if !ok || reply != "B" {
		t.Fatalf("Respond = %q, %v", reply, ok)
	}

	reqs := gen.Requests()
	want := strings.Join([]string{SystemPrompt(DefaultSettings()), OpeningInput, "A", "look around"}, "\n")
	if reqs[1].Prompt != want {
		t.Errorf("prompt = %q, want %q", reqs[1].Prompt, want)
	}
}

func TestRespondConnectionError(t *testing.T) {
	connErr := &ollama.ConnectionError{Attempts: 3, Err: errors.New("connection refused")}
	gen := &fakeGenerator{results: []fakeResult{{text: "A"}, {err: connErr}}}

	hookCalls := 0
	s := NewSession(Options{
		Generator: gen,
		In:        strings.NewReader(""),
		Out:       io.Discard,
		Logger:    testLogger(),
		OnConnectionLost: func(context.Context) error {
			hookCalls++
			return nil
		},
	})
	s.Start(context.Background())
	before := len(s.History())

	reply, ok := s.Respond(context.Background(), "open the door")
	if ok || reply != ConnectionFailedMessage {
		t.Errorf("Respond = %q, %v", reply, ok)
	}
	if got := len(s.History()); got != before {
		t.Errorf("history length = %d, want %d (failed input dropped)", got, before)
	}
	if hookCalls != 1 {
		t.Errorf("OnConnectionLost called %d times, want 1", hookCalls)
	}
}

func TestRespondOtherError(t *testing.T) {
	statusErr := &ollama.StatusError{StatusCode: 404, Message: `model "x" not found`}
	gen := &fakeGenerator{results: []fakeResult{{err: statusErr}}}
	s := newTestSession(gen, "", io.Discard)

	reply, ok := s.Respond(context.Background(), "hello")
	if ok {
		t.Error("Respond reported success")
	}
	if want := `Error: server returned 404: model "x" not found`; reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestSettingsApplyToNextTurn(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestSession(gen, "", io.Discard)
	s.Start(context.Background())

	temp := 0.2
	s.UpdateSettings(Settings{Model: "mistral:7b", Temperature: &temp})
	s.Respond(context.Background(), "wait")

	reqs := gen.Requests()
	last := reqs[len(reqs)-1]
	if last.Model != "mistral:7b" || last.Options["temperature"] != 0.2 {
		t.Errorf("request = %+v", last)
	}
	if s.Settings().Genre != "fantasy" {
		t.Error("empty fields should keep defaults")
	}
}

func TestPlayLoop(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{text: "Opening."}, {text: "You draw your sword."}}}
	var out bytes.Buffer
	s := newTestSession(gen, "\n   \ndraw sword\nQUIT\nnever read\n", &out)

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if n := len(gen.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2 (blank lines skipped, quit stops)", n)
	}
	output := out.String()
	for _, want := range []string{"Welcome to AI Adventure!", "Opening.", "What do you do? >", "You draw your sword.", "Thanks for playing!"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestPlayEndsOnEOF(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestSession(gen, "look\n", io.Discard)

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if n := len(gen.Requests()); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestPlayContinuesAfterFailedTurn(t *testing.T) {
	connErr := &ollama.ConnectionError{Attempts: 3, Err: errors.New("refused")}
	gen := &fakeGenerator{results: []fakeResult{{text: "Opening."}, {err: connErr}, {text: "It works now."}}}
	var out bytes.Buffer
	s := newTestSession(gen, "first\nsecond\nexit\n", &out)

	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, ConnectionFailedMessage) || !strings.Contains(output, "It works now.") {
		t.Errorf("output = %s", output)
	}

	history := s.History()
	for _, m := range history {
		if m.Content == "first" {
			t.Error("failed input kept in history")
		}
	}
}

func TestPlayStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSession(Options{Generator: &fakeGenerator{}, In: pr, Out: io.Discard, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Play(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Play error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not stop on cancel")
	}
}

func TestTurnsArePublished(t *testing.T) {
	bus := events.New()
	received := make(chan events.GameTurnEvent, 4)
	unsub := bus.Subscribe(func(e events.GameTurnEvent) { received <- e })
	defer unsub()

	s := NewSession(Options{Generator: &fakeGenerator{}, In: strings.NewReader(""), Out: io.Discard, Logger: testLogger(), Bus: bus})
	s.Start(context.Background())

	select {
	case e := <-received:
		if e.SessionID != s.ID() || e.Turn != 0 || e.Input != OpeningInput || e.Failed {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no GameTurnEvent published")
	}
}

func TestRendererWrapsPlainOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	r.Narrate("the quick brown fox jumps over the lazy dog", 10)

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if len(line) > 10 {
			t.Errorf("line %q longer than 10", line)
		}
	}
	if strings.Contains(out.String(), "\x1b[") {
		t.Error("non-terminal output should not be styled")
	}
}

func TestReadLinesStopsWhenDone(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	done := make(chan struct{})
	lines := readLines(pr, done)

	go func() { _, _ = io.WriteString(pw, "look\nnorth\n") }()
	if res := <-lines; res.text != "look" {
		t.Fatalf("first line = %q", res.text)
	}

	// Nobody receives "north" any more; the send must give up once done closes.
	close(done)
	time.Sleep(50 * time.Millisecond)
	pw.Close()

	select {
	case res, ok := <-lines:
		if ok {
			t.Errorf("reader delivered %q after done was closed", res.text)
		}
	case <-time.After(time.Second):
		t.Fatal("reader goroutine did not exit after done was closed")
	}
}
