package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// NewHTTPLoggingMiddleware logs HTTP requests with log levels based on status codes.
func NewHTTPLoggingMiddleware(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		method := ctx.Method()
		path := ctx.URL().Path
		query := ctx.URL().RawQuery
		userAgent := ctx.Header("User-Agent")

		logAttrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		if query != "" {
			logAttrs = append(logAttrs, slog.String("query", query))
		}
		if userAgent != "" {
			logAttrs = append(logAttrs, slog.String("user_agent", userAgent))
		}

		next(ctx)

		status := ctx.Status()
		logAttrs = append(logAttrs,
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)

		message := "HTTP request completed"
		switch {
		case method == "OPTIONS":
			logger.LogAttrs(ctx.Context(), slog.LevelDebug, message, logAttrs...)
		case status >= 500:
			logger.LogAttrs(ctx.Context(), slog.LevelError, message, logAttrs...)
		case status >= 400:
			logger.LogAttrs(ctx.Context(), slog.LevelWarn, message, logAttrs...)
		default:
			logger.LogAttrs(ctx.Context(), slog.LevelInfo, message, logAttrs...)
		}
	}
}
