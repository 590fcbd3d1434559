// Package logging provides the process-wide structured logger. New and
// rewritten packages log through this; any remaining untouched legacy
// files keep using the standard log package.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	global zerolog.Logger
)

// Init configures the global logger from a level string ("debug", "info",
// "warn", "error") and a format ("console" or "json"). Safe to call more
// than once; only the first call takes effect.
func Init(level, format string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		var w = os.Stderr
		if strings.EqualFold(format, "console") {
			global = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
				Level(lvl).With().Timestamp().Logger()
			return
		}
		global = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	})
}

// L returns the global logger, initializing it with sane defaults if Init
// was never called.
func L() *zerolog.Logger {
	Init("info", "console")
	return &global
}

// Component returns a child logger tagged with a component name, e.g.
// logging.Component("killshot").Info().Msg("kill zone entered").
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
