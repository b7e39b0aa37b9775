package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Level is the severity of a log entry. Higher values are more severe.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// ErrInvalidLevel is returned by ParseLevel for unknown level names.
var ErrInvalidLevel = errors.New("invalid log level")

// String returns the upper case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL%d", int(l))
	}
}

// ParseLevel converts a level name (case insensitive) to a Level.
// "warning" is accepted as an alias for warn.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Wrapf(ErrInvalidLevel, "%q", name)
	}
}

// LogEntry is a rendered log line travelling from a producer to a sink
// worker. Text already carries its trailing newline.
type LogEntry struct {
	Level Level
	Text  string
}

// MessageKind tags the variants carried by a mailbox.
type MessageKind int

const (
	// KindEntry carries a LogEntry to be written or batched.
	KindEntry MessageKind = iota
	// KindFlush asks the worker to flush whatever it buffers.
	KindFlush
)

// Message is the unit passed through a mailbox to a sink worker.
type Message struct {
	Kind  MessageKind
	Entry LogEntry

	// Done is closed by the worker once a flush has been processed.
	// Only set on flush messages created for Sync.
	Done chan struct{}
}

// EntryMessage wraps a log entry.
func EntryMessage(entry LogEntry) Message {
	return Message{Kind: KindEntry, Entry: entry}
}

// FlushMessage requests a best effort flush.
func FlushMessage() Message {
	return Message{Kind: KindFlush}
}

// SyncMessage requests a flush and exposes a channel closed on completion.
func SyncMessage() Message {
	return Message{Kind: KindFlush, Done: make(chan struct{})}
}

// Complete signals a waiting Sync caller, if any.
func (m Message) Complete() {
	if m.Done != nil {
		close(m.Done)
	}
}
