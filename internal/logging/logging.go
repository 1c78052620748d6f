// Package logging builds the structured loggers used by turbocharger binaries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"

	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
)

// Format is a log output encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Level is a minimal level of logged messages.
type Level string

// Supported levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Config holds logger configuration.
type Config struct {
	Level   Level  `mapstructure:"level" yaml:"level"`
	Format  Format `mapstructure:"format" yaml:"format"`
	NoColor bool   `mapstructure:"nocolor" yaml:"nocolor"`

	// Writer receives encoded entries. Defaults to os.Stderr.
	Writer io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set: info
// level JSON to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: FormatJSON}
}

// Validate checks level and format names.
func (c Config) Validate() error {
	if _, ok := parseLevel(c.Level); !ok {
		return cerrors.NewValidationError("logging", "level", c.Level, "unknown level").
			WithHint("use error, warn, info or debug")
	}
	switch Format(strings.ToLower(string(c.Format))) {
	case FormatJSON, FormatText, "":
	default:
		return cerrors.NewValidationError("logging", "format", c.Format, "unknown format").
			WithHint("use json or text")
	}
	return nil
}

// CloseFunc flushes buffered entries and stops the writer goroutine.
type CloseFunc func()

// New creates a logger from config. The returned CloseFunc must be called
// before the process exits.
func New(config Config) (*logf.Logger, CloseFunc, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	level, _ := parseLevel(config.Level)
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(config),
		EnableSyncOnError: true,
	})

	logger := logf.NewLogger(level, channel).With(logf.Int("pid", os.Getpid()))
	return logger, CloseFunc(closeFunc), nil
}

// Disabled returns a logger that drops everything.
func Disabled() *logf.Logger {
	return logf.NewDisabledLogger()
}

func newAppender(config Config) logf.Appender {
	if Format(strings.ToLower(string(config.Format))) == FormatText {
		noColor := config.NoColor
		return logftext.NewAppender(config.Writer, logftext.EncoderConfig{
			NoColor:    &noColor,
			EncodeTime: logf.RFC3339NanoTimeEncoder,
		})
	}

	return logf.NewWriteAppender(config.Writer, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		FieldKeyTime: "time",
	}))
}

func parseLevel(level Level) (logf.Level, bool) {
	switch Level(strings.ToLower(string(level))) {
	case LevelError:
		return logf.LevelError, true
	case LevelWarn:
		return logf.LevelWarn, true
	case LevelInfo, "":
		return logf.LevelInfo, true
	case LevelDebug:
		return logf.LevelDebug, true
	}
	return logf.LevelInfo, false
}
