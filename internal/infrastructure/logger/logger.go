// Package logger builds the process-wide zerolog logger, grounded on the
// teacher's own call sites (factory.go, node_executors.go use
// github.com/rs/zerolog/log directly rather than the teacher's own
// slog-based internal/infrastructure/logger package) rather than on that
// package's file, since the teacher's real logging traffic runs through
// zerolog.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup builds a zerolog.Logger at the given level ("debug", "info",
// "warn", "error"; unrecognized values fall back to info) and format
// ("json" or "console"), and installs it as zerolog's package-level
// default so module-tagged loggers built with Module() share one sink.
func Setup(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var writer interface{ Write([]byte) (int, error) } = os.Stdout
	if strings.EqualFold(format, "console") {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(writer).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &l
	return l
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Module returns a child logger tagged with a "module" field. Nothing in
// this module calls it: the application packages do not log, and the
// process entry point, host bridge and storage recorder log through the
// root logger returned by Setup.
func Module(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("module", name).Logger()
}
