/*
Package log holds the process-wide logger and helper functions for logging
within nbdtarget.
*/
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const defaultLogFilePermissions os.FileMode = 0o644

var log logrus.FieldLogger = discard()

func discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func Set(l logrus.FieldLogger) {
	if l == nil {
		l = discard()
	}
	log = l
}

func Get() logrus.FieldLogger {
	return log
}

// Config selects where log lines go and how they look.
type Config struct {
	Level      string
	Structured bool
	File       string
}

// Setup builds a logger writing to stderr, and to cfg.File when set. The
// returned closer releases the log file.
func Setup(cfg Config) (*logrus.Logger, io.Closer, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(cfg.Level); err != nil {
			return nil, nil, err
		}
	}

	var output io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, defaultLogFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to setup log file: %w", err)
		}
		output = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(level)
	if cfg.Structured {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		l.SetFormatter(&prefixed.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}
	return l, closer, nil
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// WithField returns an entry carrying key=value.
func WithField(key string, value interface{}) *logrus.Entry {
	return log.WithField(key, value)
}

func CloseAndLogError(closer io.Closer, location string) {
	if closer == nil {
		Debugf("no closer provided when attempting to close: %v", location)
		return
	}
	if err := closer.Close(); err != nil {
		Debugf("failed to close %v: %v", location, err)
	}
}
