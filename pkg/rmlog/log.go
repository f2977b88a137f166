package rmlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logger configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// levels maps config names onto zerolog's levels; names not listed
// here fall back to info.
var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Init initializes the global logger. JSON output writes events raw;
// console output wraps the same writer in zerolog's ConsoleWriter.
func Init(cfg Config) {
	lvl, ok := levels[cfg.Level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = os.Stdout
	if cfg.Output != nil {
		w = cfg.Output
	}
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

func init() {
	// A usable default so packages that log before Init runs (e.g.
	// in tests) don't panic on a zero-value logger.
	Init(Config{Level: InfoLevel})
}

// WithComponent creates a child logger tagged with the RM component
// that owns it ("pd", "mo", "ads", "cascade", ...).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPD creates a child logger tagged with a PD id.
func WithPD(pdID uint32) zerolog.Logger {
	return Logger.With().Uint32("pd_id", pdID).Logger()
}

// WithResource creates a child logger tagged with a badge's cap_type,
// space_id and object_id.
func WithResource(capType string, spaceID uint16, objectID uint32) zerolog.Logger {
	return Logger.With().
		Str("cap_type", capType).
		Uint16("space_id", spaceID).
		Uint32("object_id", objectID).
		Logger()
}
