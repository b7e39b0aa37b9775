package broker

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// DefaultNATSFlushTimeout bounds the confirmation round trip of a batch
// when the caller's context has no deadline.
const DefaultNATSFlushTimeout = 5 * time.Second

// NATSConn publishes every message of a batch and then flushes, so a nil
// error means the server has received the whole batch. NATS has no
// transactions; a failed batch may have been partially delivered.
type NATSConn struct {
	conn *nats.Conn
}

var _ Conn = (*NATSConn)(nil)

func natsOptions(ctx context.Context) []nats.Option {
	opts := []nats.Option{
		nats.Name("servicelog"),
		// The sink worker owns reconnect policy.
		nats.NoReconnect(),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	return opts
}

// DialNATS connects to the NATS server(s) in connectionString.
func DialNATS(ctx context.Context, connectionString string) (*NATSConn, error) {
	nc, err := nats.Connect(connectionString, natsOptions(ctx)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats %s", redact(connectionString))
	}
	return &NATSConn{conn: nc}, nil
}

// PublishBatch implements Conn. NATS has no multi-subject transaction:
// messages are published one by one and the flush confirms them together.
// If the batch fails partway, the messages already accepted have been
// delivered and a retry of the whole batch repeats them. Delivery is at
// least once on this transport; only Redis MULTI/EXEC is all or nothing.
func (c *NATSConn) PublishBatch(ctx context.Context, pubs []Publication) error {
	for _, p := range pubs {
		if err := c.conn.Publish(p.Channel, []byte(p.Payload)); err != nil {
			return errors.Wrapf(err, "publish to %s", p.Channel)
		}
	}

	var err error
	if _, ok := ctx.Deadline(); ok {
		err = c.conn.FlushWithContext(ctx)
	} else {
		err = c.conn.FlushTimeout(DefaultNATSFlushTimeout)
	}
	if err != nil {
		return errors.Wrapf(err, "flush %d records", len(pubs))
	}
	return nil
}

// Close implements Conn.
func (c *NATSConn) Close() error {
	c.conn.Close()
	return nil
}

// SubscribeNATS subscribes to channels and calls handler for each message
// until ctx is done.
func SubscribeNATS(ctx context.Context, connectionString string, channels []string, handler Handler) error {
	nc, err := nats.Connect(connectionString, natsOptions(ctx)...)
	if err != nil {
		return errors.Wrapf(err, "connect to nats %s", redact(connectionString))
	}
	defer nc.Close()

	for _, channel := range channels {
		if _, err := nc.Subscribe(channel, func(m *nats.Msg) {
			handler(m.Subject, string(m.Data))
		}); err != nil {
			return errors.Wrapf(err, "subscribe to %s", channel)
		}
	}
	if err := nc.Flush(); err != nil {
		return errors.Wrap(err, "confirm subscriptions")
	}

	<-ctx.Done()
	return nil
}
