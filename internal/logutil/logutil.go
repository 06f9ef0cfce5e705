// Package logutil configures the process-wide slog logger from the
// environment and CLI flags.
package logutil

import (
	"log/slog"
	"os"
	"strings"
)

// Extra levels beyond the slog built-ins. Trace sits below Debug and is used
// for per-event watcher noise; Fatal sits above Error and is reserved for
// unrecoverable startup failures.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelFatal = slog.LevelError + 4
)

// Setup installs the default logger. The level comes from
// SMARTFOLDER_LOG_LEVEL (fatal, error, warn, info, debug, trace; default
// info); verbose forces at least debug. SMARTFOLDER_LOG_JSON switches to JSON
// output regardless of terminal.
func Setup(verbose bool) {
	level := ParseLevel(os.Getenv("SMARTFOLDER_LOG_LEVEL"))
	if verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	}

	var handler slog.Handler
	if os.Getenv("SMARTFOLDER_LOG_JSON") != "" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a SMARTFOLDER_LOG_LEVEL value to a slog level. Unknown or
// empty values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return LevelFatal
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// replaceLevelNames renders the custom levels with their own names instead of
// slog's DEBUG-4 / ERROR+4 offsets.
func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case LevelTrace:
		a.Value = slog.StringValue("TRACE")
	case LevelFatal:
		a.Value = slog.StringValue("FATAL")
	}
	return a
}
