package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type zerologProvider struct {
	base zerolog.Logger
}

// NewZerologProvider returns a provider writing console output to stderr.
func NewZerologProvider(level Level) LoggerProvider {
	return NewZerologProviderWithWriter(os.Stderr, level)
}

// NewZerologProviderWithWriter returns a provider writing JSON lines to w.
func NewZerologProviderWithWriter(w io.Writer, level Level) LoggerProvider {
	return &zerologProvider{
		base: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

func (p *zerologProvider) GetLogger() Logger {
	return &zerologLogger{l: p.base}
}

func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{l: p.base.With().Str(LoggerNameKey, name).Logger()}
}

func (p *zerologProvider) SetLevel(level Level) {
	p.base = p.base.Level(level)
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...interface{}) {
	z.l.Debug().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...interface{}) {
	z.l.Info().Fields(fields).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...interface{}) {
	z.l.Warn().Fields(fields).Msg(msg)
}

// Error treats a leading error value in fields as the event's error.
func (z *zerologLogger) Error(msg string, fields ...interface{}) {
	ev := z.l.Error()
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			fields = fields[1:]
		}
	}
	ev.Fields(fields).Msg(msg)
}

func (z *zerologLogger) With(fields ...interface{}) Logger {
	return &zerologLogger{l: z.l.With().Fields(fields).Logger()}
}
