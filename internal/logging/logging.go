// Package logging builds the process logger.  Components receive a
// zerolog.Logger through their constructors and add their own fields.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w (stdout when nil).  level is a zerolog
// level name (debug, info, warn, error); unknown names fall back to info.
// format "console" renders human readable lines, anything else JSON.
func New(level, format, app string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "02-01-2006 15:04:05.000"}
	}

	// short caller: file.go:123
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if i := strings.LastIndex(file, "/"); i >= 0 {
			file = file[i+1:]
		}
		return file + ":" + strconv.Itoa(line)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", app).Caller().Logger()
}

// Nop is a disabled logger for tests.
func Nop() zerolog.Logger { return zerolog.Nop() }
