// Package notify is the user-visible message sink used by variant actions and run dispatch.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string, err error)
}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("module", "notify")}
}

func (l *Log) Success(ctx context.Context, message string) {
	l.logger.InfoContext(ctx, message, "level", LevelSuccess)
}

func (l *Log) Error(ctx context.Context, message string, err error) {
	l.logger.ErrorContext(ctx, message, "level", LevelError, "error", err)
}

type Message struct {
	Level   Level
	Message string
	Err     error
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Success(_ context.Context, message string) {
	r.record(Message{Level: LevelSuccess, Message: message})
}

func (r *Recorder) Error(_ context.Context, message string, err error) {
	r.record(Message{Level: LevelError, Message: message, Err: err})
}

func (r *Recorder) record(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, m)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Message(nil), r.messages...)
}

// Last returns the most recent notification of the given level.
func (r *Recorder) Last(level Level) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Level == level {
			return r.messages[i], true
		}
	}

	return Message{}, false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Success(context.Context, string)       {}
func (Discard) Error(context.Context, string, error) {}
