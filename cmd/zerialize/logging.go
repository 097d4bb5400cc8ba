package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// logLevelEnv selects the log level: debug, info, warn or error.
const logLevelEnv = "ZERIALIZE_LOG_LEVEL"

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if s, ok := envLookup(logLevelEnv); ok && strings.TrimSpace(s) != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil {
			level = l
		}
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "zerialize").Logger()
}
