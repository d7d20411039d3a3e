// Package log provides structured logging for atomtrain, backed by zerolog.
//
// Two styles are supported. Components hold a key/value Logger obtained from
// a LoggerProvider:
//
//	logger := log.GetLoggerWithName("trainer").With(log.ComponentKey, "trainer")
//	logger.Info("Training started", log.CycleKey, 0, log.SamplesKey, 128)
//
// Applications that want zerolog's event API use GetLogger directly:
//
//	log.GetLogger().Error().Err(err).Msg("checkpoint failed")
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level is a logging level.
type Level = zerolog.Level

// Logging levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Logger is a key/value structured logger. fields alternate key and value.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

// LoggerProvider creates named loggers that share one output and level.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}

var (
	mu             sync.RWMutex
	root           = newRoot(os.Stderr, InfoLevel)
	globalProvider LoggerProvider
)

func newRoot(w io.Writer, level Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ToLogLevel parses a level name. Unknown names map to info.
func ToLogLevel(level string) Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return InfoLevel
	}
	return l
}

// SetupLogger configures the process-wide logger at the named level.
func SetupLogger(level string) {
	SetOutput(os.Stderr, ToLogLevel(level))
}

// SetOutput redirects the process-wide logger. Intended for CLIs and tests.
func SetOutput(w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()
	root = newRoot(w, level)
	globalProvider = &zerologProvider{base: root}
}

// GetLogger returns the process-wide zerolog logger.
func GetLogger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := root
	return &l
}

// GetLoggerWithName returns a key/value logger tagged with name.
func GetLoggerWithName(name string) Logger {
	return provider().GetLoggerWithName(name)
}

// LogError logs err at error level with msg.
func LogError(err error, msg string) {
	GetLogger().Error().Err(err).Msg(msg)
}

func provider() LoggerProvider {
	mu.Lock()
	defer mu.Unlock()
	if globalProvider == nil {
		globalProvider = &zerologProvider{base: root}
	}
	return globalProvider
}
