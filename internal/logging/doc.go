// Package logging provides structured logging with per-module log levels.
//
// A Registry is built once at startup from a Config and handed to the
// components that need it. Each component asks for its own module logger:
//
//	reg := logging.New(logging.Config{
//		Level: "info",
//		Dir:   "logs",
//		Modules: map[string]string{
//			"server": "debug",
//		},
//	})
//	defer reg.Close()
//
//	logger := reg.Logger("server")
//	logger.Info("Inference server started", "pid", pid)
//
// # Sinks
//
// Every module logger fans out to the enabled sinks:
//
//	Stdout  - text or JSON handler, only when stdout is a terminal, pipe or file
//	Journal - systemd journal, only when journald is reachable
//	Dir     - append-only file <Dir>/<module>.log (server.log, game.log, ...)
//	Buffer  - in-memory ring buffer of the most recent entries
//
// The interactive game keeps stdout for the player, so it runs with Stdout
// disabled and relies on the file sinks.
//
// # Viewing Logs
//
//	tail -f logs/server.log
//	journalctl -t hearthtale MODULE=server
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	dir = "logs"
//	server = "debug"
//	game = "debug"
package logging
