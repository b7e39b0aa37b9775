package broker

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// DefaultReconnectBackoff is the wait between reconnect attempts.
const DefaultReconnectBackoff = 2 * time.Second

// ErrRetriesExhausted is returned when a bounded RetryPolicy gives up.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// RetryPolicy controls how a failed publish is retried: wait Backoff, then
// reconnect and republish. MaxAttempts of zero retries forever.
type RetryPolicy struct {
	Backoff     time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy retries forever every two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: DefaultReconnectBackoff}
}

// NewBackOff returns a fresh schedule for one outage.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Backoff)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	b.Reset()
	return b
}

// Unbounded reports whether the policy retries forever.
func (p RetryPolicy) Unbounded() bool {
	return p.MaxAttempts <= 0
}
