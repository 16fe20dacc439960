package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// StdoutLogger is the structured logger used by the binaries. It implements
// Logger on top of logrus and prints one JSON object per line.
type StdoutLogger struct {
	entry *logrus.Entry
}

// NewStdoutLogger creates a StdoutLogger writing to stdout at info level.
// component is optional and is attached as a persistent field.
func NewStdoutLogger(component string) *StdoutLogger {
	return NewLogger(os.Stdout, "info", component)
}

// NewLogger creates a StdoutLogger writing to w. Unknown levels fall back to info.
func NewLogger(w io.Writer, level, component string) *StdoutLogger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	entry := logrus.NewEntry(base)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &StdoutLogger{entry: entry}
}

func toFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.entry.WithFields(toFields(fields)).Debug(msg)
}

func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.entry.WithFields(toFields(fields)).Info(msg)
}

func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.entry.WithFields(toFields(fields)).Warn(msg)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.entry.WithFields(toFields(fields)).Error(msg)
}

// With returns a child logger carrying fields on every entry.
func (s *StdoutLogger) With(fields ...Field) Logger {
	return &StdoutLogger{entry: s.entry.WithFields(toFields(fields))}
}
