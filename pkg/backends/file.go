package backends

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
	"github.com/wayneeseguin/servicelog/pkg/mailbox"
	"github.com/wayneeseguin/servicelog/pkg/types"
)

const (
	// DefaultBufferSize for file operations
	DefaultBufferSize = 32 * 1024

	// DefaultMaxLineCount is the rollover threshold used when none is set.
	DefaultMaxLineCount = 100000

	// BackupSuffix is appended to the log path for the rotated copy.
	BackupSuffix = ".old"

	// LockSuffix is appended to the log path for the ownership lock file.
	LockSuffix = ".lock"
)

// FileConfig configures a FileSink.
type FileConfig struct {
	Path string
	// MaxLineCount is the number of lines the active file holds before it
	// is rotated to Path+".old".
	MaxLineCount int
	// Lock takes an exclusive flock on Path+".lock" for the lifetime of
	// the worker so two processes never roll the same file.
	Lock bool
}

// FileSink appends rendered lines to a local file and keeps one rotated
// predecessor. It is owned by a single goroutine.
type FileSink struct {
	rx        mailbox.Receiver
	path      string
	maxLines  int
	file      *os.File
	writer    *bufio.Writer
	lock      *flock.Flock
	lineCount int

	diag    logrus.FieldLogger
	metrics *metrics.Collector
}

var _ Worker = (*FileSink)(nil)

// NewFileSink truncates or creates the log file and, if requested, takes
// the ownership lock. Any failure here means the worker never starts.
// The parent directory must already exist.
func NewFileSink(rx mailbox.Receiver, cfg FileConfig, obs Observers) (*FileSink, error) {
	obs = obs.withDefaults("file-sink")

	path := filepath.Clean(cfg.Path)
	maxLines := cfg.MaxLineCount
	if maxLines <= 0 {
		maxLines = DefaultMaxLineCount
	}

	s := &FileSink{
		rx:       rx,
		path:     path,
		maxLines: maxLines,
		diag:     obs.Diagnostics.WithField("path", path),
		metrics:  obs.Metrics,
	}

	if cfg.Lock {
		lock := flock.New(path + LockSuffix)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, types.NewSinkError(types.ErrCodeFileLock, "lock", lock.Path(), err)
		}
		if !locked {
			return nil, types.NewSinkError(types.ErrCodeFileLock, "lock", lock.Path(),
				errors.New("held by another process"))
		}
		s.lock = lock
	}

	// #nosec G304 - the log path is operator configuration
	file, err := os.Create(path)
	if err != nil {
		s.unlock()
		return nil, types.NewSinkError(types.ErrCodeFileOpen, "create", path, err)
	}
	s.file = file
	s.writer = bufio.NewWriterSize(file, DefaultBufferSize)

	return s, nil
}

// Path returns the active log file path.
func (s *FileSink) Path() string {
	return s.path
}

// Run implements Worker. A write, flush, or reopen failure stops the
// worker; the caller is expected to notice through its own health checks.
func (s *FileSink) Run(ctx context.Context) error {
	for {
		msg, err := s.rx.Recv(ctx)
		if err != nil {
			// The file worker has a single consumer on an in-process
			// mailbox; any receive error means the producer side is gone.
			return s.close()
		}

		switch msg.Kind {
		case types.KindEntry:
			err = s.write(msg.Entry)
		case types.KindFlush:
			err = s.flush()
			msg.Complete()
		}

		if err != nil {
			s.diag.WithError(err).Error("file sink stopped")
			s.metrics.TrackError("file")
			s.abort()
			return err
		}
	}
}

func (s *FileSink) write(entry types.LogEntry) error {
	if s.lineCount >= s.maxLines {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	start := time.Now()
	n, err := s.writer.WriteString(entry.Text)
	if err != nil {
		return types.NewSinkError(types.ErrCodeFileWrite, "write", s.path, err)
	}
	s.lineCount++
	s.metrics.TrackWrite(n, time.Since(start))
	return nil
}

func (s *FileSink) flush() error {
	if err := s.writer.Flush(); err != nil {
		return types.NewSinkError(types.ErrCodeFileFlush, "flush", s.path, err)
	}
	return nil
}

// rotate copies the active file to its backup path and starts a new one.
// The copy is best effort; reopening the active path is not.
func (s *FileSink) rotate() error {
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		s.diag.WithError(err).Warn("closing log file before rotation failed")
	}

	backup := s.path + BackupSuffix
	if err := copyFile(s.path, backup); err != nil {
		s.diag.WithError(err).WithField("backup", backup).Warn("log rotation copy failed")
		s.metrics.TrackError("rotate")
	}

	// #nosec G304 - the log path is operator configuration
	file, err := os.Create(s.path)
	if err != nil {
		s.file = nil
		return types.NewSinkError(types.ErrCodeFileRotate, "reopen", s.path, err)
	}
	s.file = file
	s.writer.Reset(file)
	s.lineCount = 0
	s.metrics.TrackRotation()
	return nil
}

// close flushes and releases everything on a graceful shutdown.
func (s *FileSink) close() error {
	var first error
	if err := s.flush(); err != nil {
		first = err
	}
	if err := s.file.Close(); err != nil && first == nil {
		first = types.NewSinkError(types.ErrCodeFileWrite, "close", s.path, err)
	}
	s.unlock()
	return first
}

// abort releases resources after a fatal error without flushing again.
func (s *FileSink) abort() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.unlock()
}

func (s *FileSink) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// copyFile overwrites dst with the contents of src.
func copyFile(src, dst string) error {
	// #nosec G304 - both paths derive from the configured log path
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open rotation source")
	}
	defer in.Close()

	// #nosec G304
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create rotation backup")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "copy rotation backup")
	}
	return errors.Wrap(out.Close(), "close rotation backup")
}
