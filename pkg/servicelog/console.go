package servicelog

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
)

// Console writes records synchronously: errors to stderr, everything else
// to stdout. There is no queue and no background work.
type Console struct {
	filter

	mu      sync.Mutex
	stdout  io.Writer
	stderr  io.Writer
	diag    logrus.FieldLogger
	metrics *metrics.Collector
}

var _ LogSink = (*Console)(nil)

func newConsole(cfg ConsoleConfig, s *settings) *Console {
	c := &Console{
		stdout:  s.stdout,
		stderr:  s.stderr,
		diag:    s.diag,
		metrics: s.metrics,
	}
	c.filter = filter{minLevel: cfg.MinLevel, format: s.format, deliver: c.write}
	return c
}

func (c *Console) write(level Level, line string) {
	out := c.stdout
	if level == LevelError {
		out = c.stderr
	}

	c.mu.Lock()
	start := time.Now()
	n, err := io.WriteString(out, line)
	c.mu.Unlock()

	if err != nil {
		c.metrics.TrackError("console")
		c.diag.WithError(err).Warn("console write failed")
		return
	}
	c.metrics.TrackAccepted(int(level))
	c.metrics.TrackWrite(n, time.Since(start))
}

// RequestFlush is a no-op; writes are unbuffered.
func (c *Console) RequestFlush() {}

// Sync is a no-op.
func (c *Console) Sync(context.Context) error { return nil }

// Close is a no-op.
func (c *Console) Close(context.Context) error { return nil }

// Metrics implements LogSink.
func (c *Console) Metrics() metrics.Metrics {
	return c.metrics.GetMetrics(0, 0)
}
