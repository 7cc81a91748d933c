package cli

import (
	"io"
	"log/slog"
)

// setVerbosity installs a text logger on w at the level picked by the -v
// count.
func setVerbosity(w io.Writer, level int) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel(level)})))
}

func logLevel(level int) slog.Level {
	switch level {
	case 0:
		return slog.LevelWarn
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
