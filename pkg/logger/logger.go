// Package logger provides structured logging for splitpay services.
//
// Logger is a thin wrapper over logrus that tags every entry with the owning
// service name. Services receive a *Logger at construction and derive
// per-operation entries via WithField/WithError.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry bound to a service name.
type Logger struct {
	*logrus.Entry
}

// New creates a logger for the named service at the given level.
func New(service string, level logrus.Level) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return &Logger{Entry: base.WithField("service", service)}
}

// NewDefault creates a logger for the named service using the LOG_LEVEL
// environment variable (info when unset or unparsable).
func NewDefault(service string) *Logger {
	level := logrus.InfoLevel
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return New(service, level)
}

// WithField returns an entry with the field attached.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Entry.WithField(key, value)
}

// WithFields returns an entry with all fields attached. A nil map is allowed.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		return l.Entry.WithFields(logrus.Fields{})
	}
	return l.Entry.WithFields(logrus.Fields(fields))
}

// WithError returns an entry with the error attached.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Entry.WithError(err)
}
