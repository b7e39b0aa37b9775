// Package broker is the boundary between the pub/sub sink and the remote
// message broker. A Conn publishes a batch of channel/payload pairs as one
// unit; the concrete transport is chosen from the connection string scheme.
package broker

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedScheme is returned for connection strings no transport
// understands.
var ErrUnsupportedScheme = errors.New("unsupported broker scheme")

// Publication is one payload destined for one channel.
type Publication struct {
	Channel string
	Payload string
}

// Conn is a live connection to a broker. Conns are owned by a single
// worker goroutine and need not be safe for concurrent use.
type Conn interface {
	// PublishBatch delivers every publication or reports an error. The
	// caller retries the whole batch on error.
	PublishBatch(ctx context.Context, pubs []Publication) error
	// Close releases the connection.
	Close() error
}

// Dialer opens a Conn for a connection string.
type Dialer func(ctx context.Context, connectionString string) (Conn, error)

// Handler receives messages delivered to a subscription.
type Handler func(channel, payload string)

// Dial opens a connection using the transport that matches the scheme of
// connectionString: redis:// and rediss:// for Redis, nats:// and tls://
// for NATS.
func Dial(ctx context.Context, connectionString string) (Conn, error) {
	switch scheme(connectionString) {
	case "redis", "rediss", "unix":
		return DialRedis(ctx, connectionString)
	case "nats", "tls":
		return DialNATS(ctx, connectionString)
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", redact(connectionString))
	}
}

// Subscribe delivers messages published to channels to handler until ctx
// is done.
func Subscribe(ctx context.Context, connectionString string, channels []string, handler Handler) error {
	switch scheme(connectionString) {
	case "redis", "rediss", "unix":
		return SubscribeRedis(ctx, connectionString, channels, handler)
	case "nats", "tls":
		return SubscribeNATS(ctx, connectionString, channels, handler)
	default:
		return errors.Wrapf(ErrUnsupportedScheme, "%q", redact(connectionString))
	}
}

func scheme(connectionString string) string {
	i := strings.Index(connectionString, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(connectionString[:i])
}

// redact hides credentials so connection strings can be reported.
func redact(connectionString string) string {
	u, err := url.Parse(connectionString)
	if err != nil || u.User == nil {
		return connectionString
	}
	return u.Redacted()
}
