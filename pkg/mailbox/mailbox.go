// Package mailbox implements the bounded multi-producer, single-consumer
// queue that connects log producers to a sink worker.
//
// Producers use TrySend, which never waits: when the mailbox is full the
// message is rejected with ErrFull and the caller decides how to report
// the loss. The single worker blocks in Recv.
package mailbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/servicelog/pkg/types"
)

// Recommended capacities for the two background sinks. The pub/sub sink
// absorbs bursts that arrive while a batch is in flight over the network.
const (
	FileCapacity   = 4096
	PubSubCapacity = 4096 * 8
)

var (
	// ErrFull is returned by TrySend when no capacity is left.
	ErrFull = errors.New("mailbox full")
	// ErrClosed is returned once the producer side has been torn down.
	ErrClosed = errors.New("mailbox closed")
)

// Receiver is the consuming half of a mailbox.
type Receiver interface {
	// Recv blocks until a message is available, ctx is done, or the
	// mailbox is closed and drained.
	Recv(ctx context.Context) (types.Message, error)
}

// Mailbox is a fixed capacity FIFO of sink messages.
//
// The message channel itself is never closed, so producers racing a
// Close cannot panic; done marks the teardown instead. TrySend holds mu
// for reading across its check and its non-blocking send, and Close takes
// it for writing, so an accepted entry is always queued before done is
// closed and the worker's final drain sees it.
type Mailbox struct {
	ch        chan types.Message
	done      chan struct{}
	mu        sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a mailbox holding at most capacity messages.
// A capacity below one is raised to one.
func New(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		ch:   make(chan types.Message, capacity),
		done: make(chan struct{}),
	}
}

// TrySend enqueues msg without blocking.
func (m *Mailbox) TrySend(msg types.Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return ErrClosed
	}

	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Send enqueues msg, waiting for capacity until ctx is done. It is meant
// for control messages (Sync) and never for log entries. It does not hold
// mu while waiting, so a message racing Close may land after the final
// drain; Sync callers also watch the worker's exit for that reason.
func (m *Mailbox) Send(ctx context.Context, msg types.Message) error {
	if m.closed.Load() {
		return ErrClosed
	}

	select {
	case m.ch <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "mailbox send")
	}
}

// Recv implements Receiver. Messages queued before Close are still
// delivered; once the mailbox is closed and empty every call returns
// ErrClosed.
func (m *Mailbox) Recv(ctx context.Context) (types.Message, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-m.ch:
		return msg, nil
	case <-m.done:
		select {
		case msg := <-m.ch:
			return msg, nil
		default:
			return types.Message{}, ErrClosed
		}
	case <-ctx.Done():
		return types.Message{}, ctx.Err()
	}
}

// Close tears down the producer side. It is safe to call more than once.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.closed.Store(true)
		close(m.done)
	})
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	return m.closed.Load()
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Cap returns the mailbox capacity.
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}
