package servicelog

import (
	"context"
	"fmt"
	"time"

	"github.com/wayneeseguin/servicelog/internal/metrics"
	"github.com/wayneeseguin/servicelog/pkg/types"
)

// Level aliases the severity enum so callers need only this package.
type Level = types.Level

const (
	LevelTrace = types.LevelTrace
	LevelDebug = types.LevelDebug
	LevelInfo  = types.LevelInfo
	LevelWarn  = types.LevelWarn
	LevelError = types.LevelError
)

// Record is one log call before rendering.
type Record struct {
	Level   Level
	Message string
	Time    time.Time
}

// Formatter renders a record to a newline terminated line.
type Formatter func(Record) string

// DefaultFormatter renders the bare message followed by a newline.
func DefaultFormatter(r Record) string {
	return r.Message + "\n"
}

// LogSink is the process-wide log destination.
type LogSink interface {
	// ShouldAccept reports whether records of this level pass the filter.
	ShouldAccept(level Level) bool
	// Submit renders and delivers a record. It never blocks on the
	// destination and never fails the caller.
	Submit(r Record)
	// RequestFlush asks the destination to flush, best effort.
	RequestFlush()
	// Sync waits until everything submitted before it has been flushed.
	Sync(ctx context.Context) error
	// Close flushes and releases the destination.
	Close(ctx context.Context) error
	// Metrics returns a snapshot of the pipeline counters.
	Metrics() metrics.Metrics

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// filter holds what every sink shares: the minimum level, the formatter
// and the delivery step for an accepted, rendered record.
type filter struct {
	minLevel Level
	format   Formatter
	deliver  func(level Level, line string)
}

func (f *filter) ShouldAccept(level Level) bool {
	return level >= f.minLevel
}

func (f *filter) Submit(r Record) {
	if !f.ShouldAccept(r.Level) {
		return
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	f.deliver(r.Level, f.format(r))
}

func (f *filter) log(level Level, args ...interface{}) {
	if !f.ShouldAccept(level) {
		return
	}
	f.Submit(Record{Level: level, Message: fmt.Sprint(args...)})
}

func (f *filter) logf(level Level, format string, args ...interface{}) {
	if !f.ShouldAccept(level) {
		return
	}
	f.Submit(Record{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (f *filter) Trace(args ...interface{})                 { f.log(LevelTrace, args...) }
func (f *filter) Tracef(format string, args ...interface{}) { f.logf(LevelTrace, format, args...) }
func (f *filter) Debug(args ...interface{})                 { f.log(LevelDebug, args...) }
func (f *filter) Debugf(format string, args ...interface{}) { f.logf(LevelDebug, format, args...) }
func (f *filter) Info(args ...interface{})                  { f.log(LevelInfo, args...) }
func (f *filter) Infof(format string, args ...interface{})  { f.logf(LevelInfo, format, args...) }
func (f *filter) Warn(args ...interface{})                  { f.log(LevelWarn, args...) }
func (f *filter) Warnf(format string, args ...interface{})  { f.logf(LevelWarn, format, args...) }
func (f *filter) Error(args ...interface{})                 { f.log(LevelError, args...) }
func (f *filter) Errorf(format string, args ...interface{}) { f.logf(LevelError, format, args...) }
