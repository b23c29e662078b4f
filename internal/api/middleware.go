package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// newRequestLogger logs each completed request. Failed commands are raised
// to warn or error; reads and long-lived event streams stay at debug so a
// polling dashboard does not flood the application log.
func newRequestLogger(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		method := ctx.Method()
		path := ctx.URL().Path

		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		if label := ctx.Param("label"); label != "" {
			attrs = append(attrs, slog.String("label", label))
		}

		next(ctx)

		status := ctx.Status()
		attrs = append(attrs,
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)

		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case method == "POST":
			level = slog.LevelInfo
		}
		logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
	}
}
