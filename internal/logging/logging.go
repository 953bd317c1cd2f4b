// ABOUTME: Logrus setup for cuebox
// ABOUTME: Writes to the log file only in TUI mode, or to the file and stdout otherwise
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// TimestampLayout is the date part of every line; microseconds follow after a colon
const TimestampLayout = "2006-01-02 15:04:05"

// Options configures Setup
type Options struct {
	Level  string
	File   string
	Stdout bool
}

// Setup configures the standard logrus logger. The returned closer closes
// the log file and must be called on exit.
func Setup(opts Options) (io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Stdout {
		writers = append(writers, os.Stdout)
	}

	switch len(writers) {
	case 0:
		logrus.SetOutput(io.Discard)
	case 1:
		logrus.SetOutput(writers[0])
	default:
		logrus.SetOutput(io.MultiWriter(writers...))
	}

	logrus.SetFormatter(NewFormatter())

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', defaulting to 'info'", opts.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	return closer, nil
}

// Formatter prefixes logrus text output with a microsecond timestamp,
// e.g. "2024-01-01 12:00:00:000123 level=info msg=alpha.wav"
type Formatter struct {
	logrus.TextFormatter
}

// NewFormatter returns the formatter used for every log line
func NewFormatter() *Formatter {
	return &Formatter{TextFormatter: logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
		QuoteEmptyFields: true,
	}}
}

// Format renders entry
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	body, err := f.TextFormatter.Format(entry)
	if err != nil {
		return nil, err
	}
	return append([]byte(Stamp(entry.Time)+" "), body...), nil
}

// Stamp renders t as TimestampLayout followed by microseconds
func Stamp(t time.Time) string {
	return fmt.Sprintf("%s:%06d", t.Format(TimestampLayout), t.Nanosecond()/1000)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
