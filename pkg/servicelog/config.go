package servicelog

import (
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/servicelog/pkg/backends"
	"github.com/wayneeseguin/servicelog/pkg/broker"
	"github.com/wayneeseguin/servicelog/pkg/mailbox"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid log sink configuration")

// ConsoleConfig configures the synchronous console sink.
type ConsoleConfig struct {
	MinLevel Level
}

// DefaultConsoleConfig accepts Info and above.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{MinLevel: LevelInfo}
}

// FileConfig configures the rolling file sink.
type FileConfig struct {
	MinLevel Level
	Path     string

	// MaxLineCount is the line threshold that triggers rotation to
	// Path+".old".
	MaxLineCount int
	QueueSize    int

	// Lock holds an advisory lock on Path+".lock" for the life of the sink.
	Lock bool
}

// DefaultFileConfig returns the standard settings for path.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{
		MinLevel:     LevelInfo,
		Path:         path,
		MaxLineCount: backends.DefaultMaxLineCount,
		QueueSize:    mailbox.FileCapacity,
		Lock:         true,
	}
}

func (c *FileConfig) validate() error {
	if c.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "file path cannot be empty")
	}
	if c.MaxLineCount <= 0 {
		c.MaxLineCount = backends.DefaultMaxLineCount
	}
	if c.QueueSize <= 0 {
		c.QueueSize = mailbox.FileCapacity
	}
	return nil
}

// PubSubConfig configures the batching broker sink.
type PubSubConfig struct {
	ConnectionString string
	GroupName        string
	ShardIndex       string
	MinLevel         Level

	// Namespace prefixes channel names, "<namespace>:<group>.stdout".
	Namespace string
	Metadata  *string

	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Retry         broker.RetryPolicy
}

// DefaultPubSubConfig returns the standard settings for one group.
func DefaultPubSubConfig(connectionString, groupName string) PubSubConfig {
	return PubSubConfig{
		ConnectionString: connectionString,
		GroupName:        groupName,
		ShardIndex:       "0",
		MinLevel:         LevelInfo,
		Namespace:        backends.DefaultNamespace,
		QueueSize:        mailbox.PubSubCapacity,
		BatchSize:        backends.DefaultBatchSize,
		FlushInterval:    backends.DefaultFlushInterval,
		Retry:            broker.DefaultRetryPolicy(),
	}
}

func (c *PubSubConfig) validate() error {
	if c.ConnectionString == "" {
		return errors.Wrap(ErrInvalidConfig, "broker connection string cannot be empty")
	}
	if c.GroupName == "" {
		return errors.Wrap(ErrInvalidConfig, "group name cannot be empty")
	}
	if c.QueueSize <= 0 {
		c.QueueSize = mailbox.PubSubCapacity
	}
	return nil
}
