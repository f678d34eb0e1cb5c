// Package logging provides the structured Logger contract shared by every
// pipeline stage, plus a zerolog-backed implementation and a no-op stand-in
// for tests.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging contract every stage depends on. It mirrors
// the shape used throughout the pipeline: a message plus alternating
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used as the default when no Logger is
// injected and throughout unit tests that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// ZeroLogger adapts zerolog.Logger to the Logger contract.
type ZeroLogger struct {
	log zerolog.Logger
}

// New creates a ZeroLogger writing human-readable console output to w (or a
// sensible default of os.Stderr with RFC 3339, second-resolution timestamps
// when w is nil).
func New(w io.Writer) *ZeroLogger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	return &ZeroLogger{log: l}
}

// NewWithComponent returns a ZeroLogger that tags every entry with a
// "component" field, useful for distinguishing stages (capture, vad,
// recognizer, statemachine, offlinequeue, ...) in a single log stream.
func NewWithComponent(w io.Writer, component string) *ZeroLogger {
	base := New(w)
	l := base.log.With().Str("component", component).Logger()
	return &ZeroLogger{log: l}
}

func (z *ZeroLogger) Debug(msg string, args ...interface{}) { z.event(z.log.Debug(), msg, args) }
func (z *ZeroLogger) Info(msg string, args ...interface{})  { z.event(z.log.Info(), msg, args) }
func (z *ZeroLogger) Warn(msg string, args ...interface{})  { z.event(z.log.Warn(), msg, args) }
func (z *ZeroLogger) Error(msg string, args ...interface{}) { z.event(z.log.Error(), msg, args) }

// event attaches the alternating key/value args to a zerolog.Event and emits
// msg. A trailing key without a value is logged as-is under "extra".
func (z *ZeroLogger) event(e *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		e = e.Interface("extra", args[len(args)-1])
	}
	e.Msg(msg)
}
