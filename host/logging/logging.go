// Package logging builds the zerolog logger shared by stackctl components
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment overrides, applied over Options
const (
	EnvLevel     = "STACKCTL_LOG_LEVEL"
	EnvNoColor   = "STACKCTL_LOG_NOCOLOR"
	EnvTimestamp = "STACKCTL_LOG_TIMESTAMP"
)

// Options configures New
type Options struct {
	Level     string
	Out       io.Writer
	NoColor   bool
	Timestamp bool
	JSON      bool
}

// ParseLevel accepts zerolog level names plus "warning" and "off"
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "off", "none":
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New returns a console logger writing to opts.Out (stderr by default)
func New(opts Options) (zerolog.Logger, error) {
	applyEnv(&opts)

	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}
		if !opts.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	ctx := zerolog.New(out).Level(lvl).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger(), nil
}

func applyEnv(opts *Options) {
	if v, ok := os.LookupEnv(EnvLevel); ok && v != "" {
		opts.Level = v
	}
	if v, ok := lookupBool(EnvNoColor); ok {
		opts.NoColor = v
	}
	if v, ok := lookupBool(EnvTimestamp); ok {
		opts.Timestamp = v
	}
}

func lookupBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
