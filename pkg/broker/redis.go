package broker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConn publishes batches inside a MULTI/EXEC transaction.
type RedisConn struct {
	client *redis.Client
}

var _ Conn = (*RedisConn)(nil)

func redisOptions(connectionString string) (*redis.Options, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis connection string")
	}
	// The sink worker owns reconnect policy.
	opts.MaxRetries = -1
	return opts, nil
}

// DialRedis connects and pings the server so that a returned Conn is known
// to be live.
func DialRedis(ctx context.Context, connectionString string) (*RedisConn, error) {
	opts, err := redisOptions(connectionString)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis %s", opts.Addr)
	}
	return &RedisConn{client: client}, nil
}

// PublishBatch implements Conn.
func (c *RedisConn) PublishBatch(ctx context.Context, pubs []Publication) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pubs {
			pipe.Publish(ctx, p.Channel, p.Payload)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "publish %d records", len(pubs))
	}
	return nil
}

// Close implements Conn.
func (c *RedisConn) Close() error {
	return c.client.Close()
}

// SubscribeRedis subscribes to channels and calls handler for each message
// until ctx is done.
func SubscribeRedis(ctx context.Context, connectionString string, channels []string, handler Handler) error {
	opts, err := redisOptions(connectionString)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	sub := client.Subscribe(ctx, channels...)
	defer sub.Close()

	// Receive waits for the subscription confirmation so errors surface here.
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe")
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			handler(msg.Channel, msg.Payload)
		}
	}
}
