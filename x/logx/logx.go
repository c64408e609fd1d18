// Package logx builds zerolog loggers for host-side tools and tests.
// Firmware builds pass a Nop logger (or nothing) to the drivers.
package logx

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger tagged with app, writing to w at level.
func New(w io.Writer, app string, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

// JSON returns a structured logger without console formatting.
func JSON(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a user-supplied level name onto a zerolog level. On top of
// zerolog's names it takes "" for info, "warning", and "off"/"none".
// The second result is false for unrecognised names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zerolog.InfoLevel, true
	case "warning":
		return zerolog.WarnLevel, true
	case "off", "none":
		return zerolog.Disabled, true
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, false
	}
	return level, true
}
