package servicelog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
	"github.com/wayneeseguin/servicelog/pkg/backends"
	"github.com/wayneeseguin/servicelog/pkg/mailbox"
	"github.com/wayneeseguin/servicelog/pkg/types"
)

// ErrWorkerStopped is returned by Sync once the background worker is gone.
var ErrWorkerStopped = errors.New("log sink worker stopped")

// Logger is an asynchronous LogSink: accepted records go into a bounded
// mailbox drained by one background worker.
type Logger struct {
	filter

	mb      *mailbox.Mailbox
	diag    logrus.FieldLogger
	metrics *metrics.Collector

	cancel    context.CancelFunc
	done      chan struct{}
	workerErr error
	closeOnce sync.Once
}

var _ LogSink = (*Logger)(nil)

// newLogger starts w draining mb. When the worker exits the mailbox is
// closed, so later submissions are reported as dropped.
func newLogger(minLevel Level, mb *mailbox.Mailbox, w backends.Worker, s *settings) *Logger {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Logger{
		mb:      mb,
		diag:    s.diag,
		metrics: s.metrics,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	l.filter = filter{minLevel: minLevel, format: s.format, deliver: l.enqueue}

	go func() {
		defer close(l.done)
		defer mb.Close()

		err := w.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.diag.WithError(err).Error("log sink worker stopped")
		}
		l.workerErr = err
	}()
	return l
}

func (l *Logger) enqueue(level Level, line string) {
	err := l.mb.TrySend(types.EntryMessage(types.LogEntry{Level: level, Text: line}))
	if err != nil {
		l.metrics.TrackDropped()
		l.diag.WithError(err).WithField("level", level.String()).Warn("dropping log record")
		return
	}
	l.metrics.TrackAccepted(int(level))
}

// RequestFlush implements LogSink.
func (l *Logger) RequestFlush() {
	if err := l.mb.TrySend(types.FlushMessage()); err != nil {
		l.diag.WithError(err).Warn("dropping flush request")
	}
}

// Sync implements LogSink. Unlike Submit it waits for mailbox capacity.
func (l *Logger) Sync(ctx context.Context) error {
	msg := types.SyncMessage()
	if err := l.mb.Send(ctx, msg); err != nil {
		if errors.Is(err, mailbox.ErrClosed) {
			return ErrWorkerStopped
		}
		return errors.Wrap(err, "sync")
	}

	select {
	case <-msg.Done:
		return nil
	case <-l.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sync")
	}
}

// Close implements LogSink. The worker drains what is queued, flushes or
// publishes it and exits. If ctx expires first the worker is cancelled.
func (l *Logger) Close(ctx context.Context) error {
	l.closeOnce.Do(l.mb.Close)

	select {
	case <-l.done:
	case <-ctx.Done():
		l.cancel()
		<-l.done
		return errors.Wrap(ctx.Err(), "close")
	}
	l.cancel()

	if l.workerErr != nil {
		return errors.Wrap(l.workerErr, "close")
	}
	return nil
}

// Done is closed once the background worker has exited.
func (l *Logger) Done() <-chan struct{} {
	return l.done
}

// Metrics implements LogSink.
func (l *Logger) Metrics() metrics.Metrics {
	return l.metrics.GetMetrics(l.mb.Len(), l.mb.Cap())
}
