// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
)

// Init configures the global zerolog logger. format "json" writes structured
// lines; anything else uses the colorized console writer.
func Init(level, format string) {
	InitWithWriter(level, format, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(level, format string, w io.Writer) {
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		// Use ConsoleWriter for human-readable, colorized output in development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	// Add a hook to include the caller's file and line number
	log.Logger = log.With().Caller().Logger()
}

// LogError logs err at error level. For oops errors the code and context
// are attached as separate fields.
func LogError(msg string, err error) {
	ev := log.Error().Err(err)
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			ev = ev.Interface("code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			ev = ev.Fields(ctx)
		}
	}
	ev.Msg(msg)
}
