// Package logging provides the orchestrator's shared structured logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance used throughout the orchestrator.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel sets the logging threshold by name ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, used when --logdir is given.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to JSON-lines output.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithModule returns a logger scoped to a module name.
func WithModule(name string) *logrus.Entry {
	return Logger.WithField("module", name)
}

// WithBase returns a logger scoped to a module base (hardware/logic/gui).
func WithBase(base string) *logrus.Entry {
	return Logger.WithField("base", base)
}

// WithThread returns a logger scoped to a named worker thread.
func WithThread(name string) *logrus.Entry {
	return Logger.WithField("thread", name)
}
