package servicelog

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
	"github.com/wayneeseguin/servicelog/pkg/broker"
)

// Option adjusts how a sink is built.
type Option func(*settings) error

type settings struct {
	diag     logrus.FieldLogger
	format   Formatter
	dialer   broker.Dialer
	metadata *string
	metrics  *metrics.Collector
	stdout   io.Writer
	stderr   io.Writer
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		format: DefaultFormatter,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.diag == nil {
		s.diag = defaultDiagnostics()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	return s, nil
}

// defaultDiagnostics writes text formatted diagnostics to stderr.
func defaultDiagnostics() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// WithDiagnostics routes the pipeline's own diagnostics to l.
func WithDiagnostics(l logrus.FieldLogger) Option {
	return func(s *settings) error {
		if l == nil {
			return errors.Wrap(ErrInvalidConfig, "diagnostics logger cannot be nil")
		}
		s.diag = l
		return nil
	}
}

// WithFormatter replaces DefaultFormatter.
func WithFormatter(f Formatter) Option {
	return func(s *settings) error {
		if f == nil {
			return errors.Wrap(ErrInvalidConfig, "formatter cannot be nil")
		}
		s.format = f
		return nil
	}
}

// WithDialer replaces broker.Dial for the pub/sub sink.
func WithDialer(d broker.Dialer) Option {
	return func(s *settings) error {
		s.dialer = d
		return nil
	}
}

// WithMetadata tags every published record with metadata unless the
// pub/sub config already carries its own.
func WithMetadata(metadata string) Option {
	return func(s *settings) error {
		s.metadata = &metadata
		return nil
	}
}

// WithMetrics shares a collector between sinks or with the caller.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *settings) error {
		s.metrics = c
		return nil
	}
}

// WithOutput sets the console sink writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *settings) error {
		if stdout == nil || stderr == nil {
			return errors.Wrap(ErrInvalidConfig, "console writers cannot be nil")
		}
		s.stdout = stdout
		s.stderr = stderr
		return nil
	}
}
