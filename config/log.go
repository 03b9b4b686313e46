package config

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger builds the process logger described by Log.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if c.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
