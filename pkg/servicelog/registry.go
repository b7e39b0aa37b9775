package servicelog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/servicelog/pkg/backends"
	"github.com/wayneeseguin/servicelog/pkg/mailbox"
)

// ErrAlreadyInstalled is returned when a sink is initialized after another
// one has been installed.
var ErrAlreadyInstalled = errors.New("log sink already installed")

// Registry holds the single installed LogSink of a process. The package
// level Init functions use a shared Registry; tests and embedders can own
// their own.
type Registry struct {
	mu   sync.Mutex
	sink LogSink
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var std = NewRegistry()

// Default returns the process-wide sink, or nil before initialization.
func Default() LogSink {
	return std.Sink()
}

// Sink returns the installed sink, or nil.
func (r *Registry) Sink() LogSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink
}

// install runs build and records its sink, unless a sink is already
// installed. build is not called in that case, so no worker is started.
func (r *Registry) install(s *settings, build func() (LogSink, error)) (LogSink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink != nil {
		err := errors.Wrapf(ErrAlreadyInstalled, "%T", r.sink)
		s.diag.WithError(err).Error("refusing to replace the installed log sink")
		return nil, err
	}

	sink, err := build()
	if err != nil {
		return nil, err
	}
	r.sink = sink
	return sink, nil
}

// InitConsole installs a console sink.
func (r *Registry) InitConsole(cfg ConsoleConfig, opts ...Option) (*Console, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	sink, err := r.install(s, func() (LogSink, error) {
		return newConsole(cfg, s), nil
	})
	if err != nil {
		return nil, err
	}
	return sink.(*Console), nil
}

// InitFile creates the parent directory of cfg.Path, truncates the file
// and installs an asynchronous file sink.
func (r *Registry) InitFile(cfg FileConfig, opts ...Option) (*Logger, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sink, err := r.install(s, func() (LogSink, error) {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}

		mb := mailbox.New(cfg.QueueSize)
		w, err := backends.NewFileSink(mb, backends.FileConfig{
			Path:         cfg.Path,
			MaxLineCount: cfg.MaxLineCount,
			Lock:         cfg.Lock,
		}, observers(s))
		if err != nil {
			return nil, err
		}
		return newLogger(cfg.MinLevel, mb, w, s), nil
	})
	if err != nil {
		return nil, err
	}
	return sink.(*Logger), nil
}

// InitPubSub connects to the broker and installs an asynchronous pub/sub
// sink. The connection is live when it returns, so records logged right
// away are not lost to startup.
func (r *Registry) InitPubSub(ctx context.Context, cfg PubSubConfig, opts ...Option) (*Logger, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Metadata == nil {
		cfg.Metadata = s.metadata
	}

	sink, err := r.install(s, func() (LogSink, error) {
		mb := mailbox.New(cfg.QueueSize)
		w, err := backends.NewPubSubSink(ctx, mb, backends.PubSubConfig{
			ConnectionString: cfg.ConnectionString,
			GroupName:        cfg.GroupName,
			ShardIndex:       cfg.ShardIndex,
			Namespace:        cfg.Namespace,
			Metadata:         cfg.Metadata,
			BatchSize:        cfg.BatchSize,
			FlushInterval:    cfg.FlushInterval,
			Retry:            cfg.Retry,
			Dialer:           s.dialer,
		}, observers(s))
		if err != nil {
			return nil, err
		}
		return newLogger(cfg.MinLevel, mb, w, s), nil
	})
	if err != nil {
		return nil, err
	}
	return sink.(*Logger), nil
}

func observers(s *settings) backends.Observers {
	return backends.Observers{Diagnostics: s.diag, Metrics: s.metrics}
}

// InitConsole installs a console sink as the process-wide sink.
func InitConsole(cfg ConsoleConfig, opts ...Option) (*Console, error) {
	return std.InitConsole(cfg, opts...)
}

// InitFile installs a file sink as the process-wide sink.
func InitFile(cfg FileConfig, opts ...Option) (*Logger, error) {
	return std.InitFile(cfg, opts...)
}

// InitPubSub installs a pub/sub sink as the process-wide sink.
func InitPubSub(ctx context.Context, cfg PubSubConfig, opts ...Option) (*Logger, error) {
	return std.InitPubSub(ctx, cfg, opts...)
}

