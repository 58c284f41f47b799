package log

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"

	"github.com/xeptore/teradl/constant"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldUnit = time.Millisecond
}

const (
	FormatPretty = "pretty"
	FormatPacked = "json"
)

func newBaseLogger() zerolog.Logger {
	return zerolog.
		New(io.Discard).
		With().
		Dict(
			"app",
			zerolog.Dict().
				Str("name", constant.AppName).
				Str("version", constant.Version).
				Str("compilation_time", constant.CompileTime.Format(time.RFC3339)),
		).
		Timestamp().
		Logger().
		Level(zerolog.TraceLevel)
}

func NewPretty(w io.Writer) zerolog.Logger {
	return newBaseLogger().Output(prettyWriter{out: w})
}

func NewPacked(w io.Writer) zerolog.Logger {
	return newBaseLogger().Output(w)
}

// New builds a logger from the configured format and level names.
func New(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(level))
		if nil != err {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %v", level, err)
		}
		lvl = l
	}

	switch strings.ToLower(format) {
	case "", FormatPretty:
		return NewPretty(w).Level(lvl), nil
	case FormatPacked:
		return NewPacked(w).Level(lvl), nil
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", format)
	}
}

type prettyWriter struct {
	out io.Writer
}

func (p prettyWriter) Write(line []byte) (int, error) {
	if n, err := p.out.Write(pretty.Color(pretty.Pretty(line), nil)); nil != err {
		return n, err
	}
	return len(line), nil
}
