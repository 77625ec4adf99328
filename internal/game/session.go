// Package game is the text-adventure loop: it turns player input into prompts
// for the narrator model and prints the replies.
package game

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/hearthtale/internal/events"
	"github.com/smazurov/hearthtale/internal/ollama"
)

// ConnectionFailedMessage replaces a reply when the server stays unreachable.
const ConnectionFailedMessage = "Error: Server connection failed. Please try again."

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error)
}

// Options configures a Session.
type Options struct {
	Settings  Settings
	Generator Generator
	In        io.Reader
	Out       io.Writer
	Logger    *slog.Logger
	Bus       *events.Bus // optional

	// OnConnectionLost runs after a turn failed with a connection error,
	// typically to restart the server.
	OnConnectionLost func(ctx context.Context) error
}

// Session is one playthrough.
type Session struct {
	id               string
	gen              Generator
	in               io.Reader
	render           *Renderer
	logger           *slog.Logger
	bus              *events.Bus
	onConnectionLost func(ctx context.Context) error

	mu       sync.Mutex
	settings Settings
	history  []Message
	turn     int
}

// NewSession creates a session. Nothing is sent until Start.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:               id,
		gen:              opts.Generator,
		in:               opts.In,
		render:           NewRenderer(opts.Out),
		logger:           logger.With("session", id),
		bus:              opts.Bus,
		onConnectionLost: opts.OnConnectionLost,
		settings:         opts.Settings.withDefaults(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the settings used by following turns.
func (s *Session) UpdateSettings(next Settings) {
	next = next.withDefaults()
	s.mu.Lock()
	prev := s.settings
	s.settings = next
	s.mu.Unlock()

	if prev.Model != next.Model {
		s.logger.Info("Model changed", "from", prev.Model, "to", next.Model)
	} else {
		s.logger.Debug("Game settings reloaded")
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Start resets the conversation to the system prompt and narrates the
// opening scene.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	settings := s.settings
	s.history = []Message{{Role: RoleSystem, Content: SystemPrompt(settings)}}
	s.turn = 0
	s.mu.Unlock()

	s.logger.Debug("Starting game", "genre", settings.Genre, "theme", settings.Theme, "setting", settings.Setting)
	s.show(s.Respond(ctx, OpeningInput))
}

// Play runs the game loop until the player quits, input ends or ctx is
// cancelled. Failed turns are shown inline and never end the loop.
func (s *Session) Play(ctx context.Context) error {
	s.logger.Info("Game started")
	s.render.Title("Welcome to AI Adventure!")
	s.render.Info("Type 'quit' to exit the game.")

	s.Start(ctx)

	done := make(chan struct{})
	defer close(done)
	lines := readLines(s.in, done)
	for {
		if err := ctx.Err(); err != nil {
			return s.ended(err)
		}
		s.render.Prompt()

		var line string
		select {
		case <-ctx.Done():
			return s.ended(ctx.Err())
		case res, ok := <-lines:
			if !ok {
				s.logger.Info("Input closed, ending game")
				return nil
			}
			if res.err != nil {
				s.logger.Error("Failed to read input", "error", res.err)
				return fmt.Errorf("read input: %w", res.err)
			}
			line = strings.TrimSpace(res.text)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			s.logger.Info("Player exited the game")
			s.render.Info("\nThanks for playing!")
			return nil
		}

		s.show(s.Respond(ctx, line))
	}
}

func (s *Session) ended(err error) error {
	s.logger.Warn("Game ended by player")
	s.render.Info("\nGame ended by player.")
	return err
}

func (s *Session) show(reply string, ok bool) {
	if !ok {
		s.render.Error(reply)
		return
	}
	s.render.Narrate(reply, s.Settings().WrapWidth)
}

// Respond runs one turn. The input is recorded once; it is dropped again if
// generation fails, in which case the reply is an inline error message and
// ok is false.
func (s *Session) Respond(ctx context.Context, input string) (reply string, ok bool) {
	s.mu.Lock()
	settings := s.settings
	s.history = append(s.history, Message{Role: RoleUser, Content: input})
	prompt := buildPrompt(s.history)
	turn := s.turn
	s.mu.Unlock()

	s.logger.Debug("Sending request to server", "turn", turn, "model", settings.Model, "prompt_len", len(prompt))
	resp, err := s.gen.Generate(ctx, ollama.GenerateRequest{
		Model:   settings.Model,
		Prompt:  prompt,
		Options: settings.generateOptions(),
	})

	if err != nil {
		s.mu.Lock()
		if n := len(s.history); n > 0 && s.history[n-1].Role == RoleUser {
			s.history = s.history[:n-1]
		}
		s.mu.Unlock()
		reply = s.failureMessage(ctx, err)
		s.publish(turn, input, reply, true)
		return reply, false
	}

	s.mu.Lock()
	s.history = append(s.history, Message{Role: RoleAssistant, Content: resp.Response})
	s.turn++
	s.mu.Unlock()

	s.publish(turn, input, resp.Response, false)
	return resp.Response, true
}

func (s *Session) failureMessage(ctx context.Context, err error) string {
	var connErr *ollama.ConnectionError
	if !errors.As(err, &connErr) {
		s.logger.Error("Generation failed", "error", err)
		return "Error: " + err.Error()
	}

	s.logger.Error("Server connection failed", "attempts", connErr.Attempts, "error", connErr.Err)
	if s.onConnectionLost != nil && ctx.Err() == nil {
		if hookErr := s.onConnectionLost(ctx); hookErr != nil {
			s.logger.Error("Connection recovery failed", "error", hookErr)
		}
	}
	return ConnectionFailedMessage
}

func (s *Session) publish(turn int, input, response string, failed bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.GameTurnEvent{
		SessionID: s.id,
		Turn:      turn,
		Input:     input,
		Response:  response,
		Failed:    failed,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

type lineResult struct {
	text string
	err  error
}

// readLines scans r on its own goroutine so the loop can also watch ctx.
// The channel closes at EOF. Once done is closed the goroutine exits after
// its current read returns.
func readLines(r io.Reader, done <-chan struct{}) <-chan lineResult {
	ch := make(chan lineResult)
	go func() {
		defer close(ch)
		send := func(res lineResult) bool {
			select {
			case ch <- res:
				return true
			case <-done:
				return false
			}
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if !send(lineResult{text: scanner.Text()}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(lineResult{err: err})
		}
	}()
	return ch
}
