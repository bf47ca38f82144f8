// Package logging provides structured logging shared by every chomp
// component. It wraps logrus the way the teacher's
// infrastructure/logging package does, adding an instance/ingester
// scoped view instead of a trace-id scoped one.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed "component" field.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("worker", "server",
// an ingester name, ...). format is "json" or "text".
func New(component, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json, with debug forced on when verbose is true (the -v CLI flag).
func NewFromEnv(component string, verbose bool) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	if verbose {
		level = "debug"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// Ingester returns a *logrus.Entry scoped to one ingester epoch, the
// shape every ingest.Runner log line carries per spec.md §7.
func (l *Logger) Ingester(name, field string) *logrus.Entry {
	e := l.WithFields(logrus.Fields{"component": l.component, "ingester": name})
	if field != "" {
		e = e.WithField("field", field)
	}
	return e
}

// WithError mirrors the teacher's WithError helper.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

// WithFields mirrors the teacher's WithFields helper, always stamping
// the component name.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}
