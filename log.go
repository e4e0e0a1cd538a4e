package main

import (
	"io"

	"github.com/rs/zerolog"
)

// newLogger returns a console logger at the given level. Unknown levels fall
// back to info.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
	}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Str("app", appName).Logger()
}
