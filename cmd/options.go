// Package cmd holds the hearthtale subcommands and the options they share.
package cmd

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/config"
	"github.com/smazurov/hearthtale/internal/events"
	"github.com/smazurov/hearthtale/internal/game"
	"github.com/smazurov/hearthtale/internal/logging"
	"github.com/smazurov/hearthtale/internal/ollama"
	"github.com/smazurov/hearthtale/internal/process"
)

// Readiness defaults when server.ready_attempts is unset.
const (
	playReadyAttempts  = 5
	playReadyDelay     = 2 * time.Second
	serveReadyAttempts = 30
	serveReadyDelay    = time.Second
)

// Options for the CLI - flat structure with toml mapping.
// Flag names derive from field names: ServerPort -> --server-port.
type Options struct {
	Config  string
	EnvFile string

	// Managed server
	ServerExecutable    string        `toml:"server.executable" env:"SERVER_EXECUTABLE"`
	ServerArgs          []string      `toml:"server.args" env:"SERVER_ARGS"`
	ServerHost          string        `toml:"server.host" env:"SERVER_HOST"`
	ServerPort          int           `toml:"server.port" env:"SERVER_PORT"`
	ServerWarmup        time.Duration `toml:"server.warmup" env:"SERVER_WARMUP"`
	ServerGracePeriod   time.Duration `toml:"server.grace_period" env:"SERVER_GRACE_PERIOD"`
	ServerRestartDelay  time.Duration `toml:"server.restart_delay" env:"SERVER_RESTART_DELAY"`
	ServerReadyAttempts int           `toml:"server.ready_attempts" env:"SERVER_READY_ATTEMPTS"`
	ServerReadyDelay    time.Duration `toml:"server.ready_delay" env:"SERVER_READY_DELAY"`

	// Game
	GameModel     string `toml:"game.model" env:"GAME_MODEL"`
	GameGenre     string `toml:"game.genre" env:"GAME_GENRE"`
	GameTheme     string `toml:"game.theme" env:"GAME_THEME"`
	GameSetting   string `toml:"game.setting" env:"GAME_SETTING"`
	GameWrapWidth int    `toml:"game.wrap_width" env:"GAME_WRAP_WIDTH"`

	// Inference client
	ClientRetries    int           `toml:"client.retries" env:"CLIENT_RETRIES"`
	ClientRetryDelay time.Duration `toml:"client.retry_delay" env:"CLIENT_RETRY_DELAY"`
	ClientTimeout    time.Duration `toml:"client.timeout" env:"CLIENT_TIMEOUT"`

	// Logging
	LoggingLevel   string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDir     string `toml:"logging.dir" env:"LOGGING_DIR"`
	LoggingServer  string `toml:"logging.server" env:"LOGGING_SERVER"`
	LoggingGame    string `toml:"logging.game" env:"LOGGING_GAME"`
	LoggingAPI     string `toml:"logging.api" env:"LOGGING_API"`
	LoggingJournal bool   `toml:"logging.journal" env:"LOGGING_JOURNAL"`

	// Status API (serve)
	ListenAddr   string `toml:"api.listen" env:"API_LISTEN"`
	AuthUsername string `toml:"api.username" env:"API_USERNAME"`
	AuthPassword string `toml:"api.password" env:"API_PASSWORD"`
}

// addFlags registers every option as a persistent flag on root.
func addFlags(root *cobra.Command, opts *Options) {
	f := root.PersistentFlags()

	f.StringVarP(&opts.Config, "config", "c", "hearthtale.toml", "Path to configuration file")
	f.StringVar(&opts.EnvFile, "env-file", ".env", "Path to .env file")

	f.StringVar(&opts.ServerExecutable, "server-executable", "ollama", "Inference server executable")
	f.StringSliceVar(&opts.ServerArgs, "server-args", []string{"serve"}, "Arguments passed to the server")
	f.StringVar(&opts.ServerHost, "server-host", "localhost", "Host the server listens on")
	f.IntVar(&opts.ServerPort, "server-port", 11434, "Port the server listens on")
	f.DurationVar(&opts.ServerWarmup, "server-warmup", 5*time.Second, "Time the server must survive after spawn")
	f.DurationVar(&opts.ServerGracePeriod, "server-grace-period", 5*time.Second, "Time to wait for a graceful stop before killing")
	f.DurationVar(&opts.ServerRestartDelay, "server-restart-delay", 5*time.Second, "Pause between stop and start on restart")
	f.IntVar(&opts.ServerReadyAttempts, "server-ready-attempts", 0, "Readiness probes before giving up (0: 5 for play, 30 for serve)")
	f.DurationVar(&opts.ServerReadyDelay, "server-ready-delay", 0, "Delay between readiness probes (0: 2s for play, 1s for serve)")

	f.StringVar(&opts.GameModel, "game-model", "llama3.2:latest", "Model that narrates the game")
	f.StringVar(&opts.GameGenre, "game-genre", "fantasy", "Story genre")
	f.StringVar(&opts.GameTheme, "game-theme", "adventure", "Story theme")
	f.StringVar(&opts.GameSetting, "game-setting", "medieval kingdom", "Story setting")
	f.IntVar(&opts.GameWrapWidth, "game-wrap-width", 80, "Column at which narration is wrapped")

	f.IntVar(&opts.ClientRetries, "client-retries", 3, "Attempts per request on connection failure")
	f.DurationVar(&opts.ClientRetryDelay, "client-retry-delay", 2*time.Second, "Delay between request attempts")
	f.DurationVar(&opts.ClientTimeout, "client-timeout", 30*time.Second, "Per-request timeout")

	f.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	f.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
	f.StringVar(&opts.LoggingDir, "logging-dir", "logs", "Directory for per-module log files")
	f.StringVar(&opts.LoggingServer, "logging-server", "debug", "Server logging level")
	f.StringVar(&opts.LoggingGame, "logging-game", "debug", "Game logging level")
	f.StringVar(&opts.LoggingAPI, "logging-api", "info", "API logging level")
	f.BoolVar(&opts.LoggingJournal, "logging-journal", false, "Also log to the systemd journal")

	f.StringVar(&opts.ListenAddr, "listen-addr", "127.0.0.1:8091", "Status API listen address (serve)")
	f.StringVar(&opts.AuthUsername, "auth-username", "", "Status API basic auth username")
	f.StringVar(&opts.AuthPassword, "auth-password", "", "Status API basic auth password")
}

// newRegistry builds the logging registry. The terminal belongs to the
// player in play mode, so only serve logs to stdout.
func newRegistry(opts *Options, stdout bool) *logging.Registry {
	return logging.New(logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"server": opts.LoggingServer,
			"game":   opts.LoggingGame,
			"api":    opts.LoggingAPI,
		},
		Dir:     opts.LoggingDir,
		Stdout:  stdout,
		Journal: opts.LoggingJournal,
	})
}

// managerOptions maps options onto the process manager and publishes every
// state transition on bus.
func managerOptions(opts *Options, logger *slog.Logger, bus *events.Bus) process.Options {
	return process.Options{
		Executable:   opts.ServerExecutable,
		Args:         opts.ServerArgs,
		Host:         opts.ServerHost,
		Port:         opts.ServerPort,
		WarmUp:       opts.ServerWarmup,
		GracePeriod:  opts.ServerGracePeriod,
		RestartDelay: opts.ServerRestartDelay,
		Logger:       logger,
		LogParser:    process.ParseServerLogLevel,
		OnStateChange: func(from, to process.State, err error) {
			ev := events.ServerStateChangedEvent{
				From:      string(from),
				To:        string(to),
				Timestamp: time.Now().Format(time.RFC3339),
			}
			if err != nil {
				ev.Error = err.Error()
			}
			bus.Publish(ev)
		},
	}
}

func clientConfig(opts *Options, logger *slog.Logger) ollama.Config {
	return ollama.Config{
		BaseURL:    baseURL(opts),
		Retries:    opts.ClientRetries,
		RetryDelay: opts.ClientRetryDelay,
		Timeout:    opts.ClientTimeout,
		Logger:     logger,
	}
}

func baseURL(opts *Options) string {
	return "http://" + net.JoinHostPort(opts.ServerHost, strconv.Itoa(opts.ServerPort))
}

// readinessPolicy applies the per-mode defaults for unset values.
func readinessPolicy(opts *Options, attempts int, delay time.Duration, logger *slog.Logger) process.ReadinessPolicy {
	if opts.ServerReadyAttempts > 0 {
		attempts = opts.ServerReadyAttempts
	}
	if opts.ServerReadyDelay > 0 {
		delay = opts.ServerReadyDelay
	}
	return process.ReadinessPolicy{Attempts: attempts, Delay: delay, Logger: logger}
}

// waitReady polls hc and publishes the outcome.
func waitReady(ctx context.Context, hc process.HealthChecker, policy process.ReadinessPolicy, bus *events.Bus) error {
	err := process.WaitReady(ctx, hc, policy)
	ev := events.ServerReadinessEvent{
		Ready:     err == nil,
		Attempts:  policy.Attempts,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	bus.Publish(ev)
	return err
}

// gameSettings returns the startup settings: options first, then anything
// only the [game] table can carry.
func gameSettings(opts *Options, fromFile game.Settings) game.Settings {
	s := game.Settings{
		Model:     opts.GameModel,
		Genre:     opts.GameGenre,
		Theme:     opts.GameTheme,
		Setting:   opts.GameSetting,
		WrapWidth: opts.GameWrapWidth,
	}
	s.Temperature = fromFile.Temperature
	return s
}

// reloadedSettings overlays a reloaded [game] table on the current settings.
// Keys missing from the file keep their current value.
func reloadedSettings(current, fromFile game.Settings) game.Settings {
	next := current
	if fromFile.Model != "" {
		next.Model = fromFile.Model
	}
	if fromFile.Genre != "" {
		next.Genre = fromFile.Genre
	}
	if fromFile.Theme != "" {
		next.Theme = fromFile.Theme
	}
	if fromFile.Setting != "" {
		next.Setting = fromFile.Setting
	}
	if fromFile.WrapWidth > 0 {
		next.WrapWidth = fromFile.WrapWidth
	}
	next.Temperature = fromFile.Temperature
	return next
}

func loadGameSection(path string) (game.Settings, error) {
	return config.LoadSection[game.Settings](path, "game")
}
