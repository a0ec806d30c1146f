package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	Logger.SetLevel(logrus.InfoLevel)

	// Override from env, e.g., LOG_LEVEL=debug
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		SetLevel(level)
	}
}

// SetLevel parses level and applies it to Logger.
// It returns false and leaves the current level untouched when level is not valid.
func SetLevel(level string) bool {
	parsedLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return false
	}
	Logger.SetLevel(parsedLevel)
	return true
}

// WithComponent adds a component field to the logger
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// WithKey adds component and store key fields to the logger.
func WithKey(component, key string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"component": component,
		"key":       key,
	})
}
