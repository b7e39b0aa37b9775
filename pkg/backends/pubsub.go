package backends

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
	"github.com/wayneeseguin/servicelog/pkg/broker"
	"github.com/wayneeseguin/servicelog/pkg/codec"
	"github.com/wayneeseguin/servicelog/pkg/mailbox"
	"github.com/wayneeseguin/servicelog/pkg/types"
)

const (
	// DefaultBatchSize is the number of buffered entries that forces a publish.
	DefaultBatchSize = 500

	// DefaultFlushInterval is the longest an entry waits in the batch.
	DefaultFlushInterval = 10 * time.Second

	// DefaultNamespace prefixes every channel name.
	DefaultNamespace = "monitoring-nomad"
)

// errFlushDue is returned by recv when the batch has waited long enough.
var errFlushDue = errors.New("flush interval elapsed")

// Channels are the three broker channels of one group.
type Channels struct {
	Stdout string
	Warn   string
	Stderr string
}

// ChannelNames derives "<namespace>:<group>.<stdout|warn|stderr>".
func ChannelNames(namespace, group string) Channels {
	prefix := fmt.Sprintf("%s:%s.", namespace, group)
	return Channels{
		Stdout: prefix + "stdout",
		Warn:   prefix + "warn",
		Stderr: prefix + "stderr",
	}
}

// For routes a severity to its channel: errors to stderr, warnings to
// warn, everything else to stdout.
func (c Channels) For(level types.Level) string {
	switch level {
	case types.LevelError:
		return c.Stderr
	case types.LevelWarn:
		return c.Warn
	default:
		return c.Stdout
	}
}

// All returns the three channel names.
func (c Channels) All() []string {
	return []string{c.Stdout, c.Warn, c.Stderr}
}

// PubSubConfig configures a PubSubSink.
type PubSubConfig struct {
	ConnectionString string
	GroupName        string
	ShardIndex       string
	Namespace        string
	// Metadata is copied into every published record when set.
	Metadata *string

	BatchSize     int
	FlushInterval time.Duration
	Retry         broker.RetryPolicy

	// Dialer opens broker connections; broker.Dial when nil.
	Dialer broker.Dialer
}

// PubSubSink batches entries and publishes them to a broker, rebuilding
// the connection when a publish fails. It is owned by a single goroutine.
type PubSubSink struct {
	rx       mailbox.Receiver
	cfg      PubSubConfig
	dial     broker.Dialer
	conn     broker.Conn
	channels Channels

	batch     []types.LogEntry
	lastFlush time.Time

	diag    logrus.FieldLogger
	metrics *metrics.Collector
}

var _ Worker = (*PubSubSink)(nil)

// NewPubSubSink connects to the broker. Failing to connect here is fatal:
// no worker is returned and nothing is retried.
func NewPubSubSink(ctx context.Context, rx mailbox.Receiver, cfg PubSubConfig, obs Observers) (*PubSubSink, error) {
	obs = obs.withDefaults("pubsub-sink")

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.ShardIndex == "" {
		cfg.ShardIndex = "0"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Retry.Backoff <= 0 {
		cfg.Retry.Backoff = broker.DefaultReconnectBackoff
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = broker.Dial
	}

	s := &PubSubSink{
		rx:       rx,
		cfg:      cfg,
		dial:     dial,
		channels: ChannelNames(cfg.Namespace, cfg.GroupName),
		batch:    make([]types.LogEntry, 0, cfg.BatchSize),
		diag:     obs.Diagnostics.WithField("group", cfg.GroupName),
		metrics:  obs.Metrics,
	}

	conn, err := dial(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, types.NewSinkError(types.ErrCodeBrokerConnect, "connect", s.channels.Stdout, err)
	}
	s.conn = conn
	s.lastFlush = time.Now()

	return s, nil
}

// Channels returns the channel names this sink publishes to.
func (s *PubSubSink) Channels() Channels {
	return s.channels
}

// Run implements Worker. It returns after three consecutive receive
// failures, publishing the pending batch first, or when ctx is cancelled.
// Cancellation stops immediately: the pending batch is reported as
// unpublished and ctx.Err() is returned.
func (s *PubSubSink) Run(ctx context.Context) error {
	defer s.closeConn()

	failures := 0
	for {
		msg, err := s.recv(ctx)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, errFlushDue):
			s.publish(ctx)
			continue
		case ctx.Err() != nil:
			if n := len(s.batch); n > 0 {
				s.diag.WithField("records", n).Error("pubsub sink cancelled with unpublished records")
			}
			return ctx.Err()
		default:
			failures++
			if failures < maxRecvFailures {
				continue
			}
			s.diag.WithError(err).Warnf("pubsub sink receive failed %d times in a row, shutting down", failures)
			s.publish(ctx)
			return nil
		}

		switch msg.Kind {
		case types.KindEntry:
			s.batch = append(s.batch, msg.Entry)
			if len(s.batch) >= s.cfg.BatchSize || time.Since(s.lastFlush) > s.cfg.FlushInterval {
				s.publish(ctx)
			}
		case types.KindFlush:
			s.publish(ctx)
			msg.Complete()
		}
	}
}

// recv waits for the next message, but no longer than the flush deadline
// of a non-empty batch.
func (s *PubSubSink) recv(ctx context.Context) (types.Message, error) {
	if len(s.batch) == 0 {
		return s.rx.Recv(ctx)
	}

	deadline := s.lastFlush.Add(s.cfg.FlushInterval)
	if !time.Now().Before(deadline) {
		return types.Message{}, errFlushDue
	}

	recvCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	msg, err := s.rx.Recv(recvCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return msg, errFlushDue
	}
	return msg, err
}

// publish sends the pending batch. The batch is cleared only once the
// broker confirms delivery; a bounded retry policy that gives up leaves
// the batch in place for the next trigger.
func (s *PubSubSink) publish(ctx context.Context) {
	defer func() { s.lastFlush = time.Now() }()

	if len(s.batch) == 0 {
		return
	}

	pubs := s.encodeBatch()
	if len(pubs) > 0 {
		if err := s.publishWithRetry(ctx, pubs); err != nil {
			s.diag.WithError(err).WithField("records", len(s.batch)).Error("pubsub sink could not publish batch")
			return
		}
		s.metrics.TrackPublish(len(pubs))
	}

	s.batch = s.batch[:0]
}

// encodeBatch maps each entry to its channel and wire form. An entry that
// cannot be encoded is dropped and reported.
func (s *PubSubSink) encodeBatch() []broker.Publication {
	pubs := make([]broker.Publication, 0, len(s.batch))
	for _, entry := range s.batch {
		channel := s.channels.For(entry.Level)
		payload, err := codec.Encode(codec.WireRecord{
			Message:     entry.Text,
			Group:       s.cfg.GroupName,
			Index:       s.cfg.ShardIndex,
			ChannelName: channel,
			Metadata:    s.cfg.Metadata,
		})
		if err != nil {
			s.diag.WithError(types.NewSinkError(types.ErrCodeEncode, "encode", channel, err)).Error("dropping log record")
			s.metrics.TrackError("encode")
			s.metrics.TrackDropped()
			continue
		}
		pubs = append(pubs, broker.Publication{Channel: channel, Payload: payload})
	}
	return pubs
}

// publishWithRetry publishes pubs, and on failure loops: wait, reconnect,
// republish the same pubs.
func (s *PubSubSink) publishWithRetry(ctx context.Context, pubs []broker.Publication) error {
	cause := s.publishOnce(ctx, pubs)
	if cause == nil {
		return nil
	}

	b := s.cfg.Retry.NewBackOff()
	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return errors.Wrapf(broker.ErrRetriesExhausted, "after %d attempts: %v", attempt-1, cause)
		}

		s.diag.WithError(cause).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": wait,
		}).Warn("log broker unavailable, reconnecting")

		if err := sleep(ctx, wait); err != nil {
			return errors.Wrap(err, "reconnect aborted")
		}

		s.closeConn()
		conn, err := s.dial(ctx, s.cfg.ConnectionString)
		if err != nil {
			cause = types.NewSinkError(types.ErrCodeBrokerConnect, "reconnect", s.channels.Stdout, err)
			s.metrics.TrackError("connect")
			continue
		}
		s.conn = conn
		s.metrics.TrackReconnect()

		if cause = s.publishOnce(ctx, pubs); cause == nil {
			s.diag.WithField("attempt", attempt).Info("log broker reconnected")
			return nil
		}
	}
}

func (s *PubSubSink) publishOnce(ctx context.Context, pubs []broker.Publication) error {
	if s.conn == nil {
		return errors.New("no broker connection")
	}
	if err := s.conn.PublishBatch(ctx, pubs); err != nil {
		s.metrics.TrackPublishFailure()
		return types.NewSinkError(types.ErrCodeBrokerPublish, "publish", s.channels.Stdout, err)
	}
	return nil
}

func (s *PubSubSink) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.diag.WithError(err).Debug("closing broker connection failed")
	}
	s.conn = nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
