package servicelog

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/servicelog/pkg/types"
)

// Environment variables read by LoadEnv.
const (
	EnvKind             = "LOG_KIND"
	EnvConnectionString = "LOG_REDIS_CONNECTION_STRING"
	EnvBrokerURL        = "LOG_BROKER_URL"
	EnvGroupName        = "GROUP_NAME"
	EnvAllocIndex       = "ALLOC_INDEX"
	EnvRustLog          = "RUST_LOG"
	EnvLevel            = "LOG_LEVEL"
	EnvFilePath         = "LOG_FILE_PATH"
	EnvMaxLineCount     = "LOG_MAX_LINE_COUNT"
)

// Kind selects the sink installed by InitFromEnv.
type Kind int

const (
	KindConsole Kind = iota
	KindFile
	KindPubSub
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPubSub:
		return "pubsub"
	default:
		return "console"
	}
}

// EnvConfig is the sink selection read from the environment.
type EnvConfig struct {
	Kind     Kind
	MinLevel Level

	ConnectionString string
	GroupName        string
	ShardIndex       string

	FilePath     string
	MaxLineCount int
}

// LoadEnv reads the sink selection from the environment. Unknown kinds
// fall back to the console and unknown levels to info.
func LoadEnv() (EnvConfig, error) {
	cfg := EnvConfig{
		Kind:       parseKind(os.Getenv(EnvKind)),
		MinLevel:   envLevel(),
		ShardIndex: "0",
	}

	cfg.ConnectionString = os.Getenv(EnvConnectionString)
	if cfg.ConnectionString == "" {
		cfg.ConnectionString = os.Getenv(EnvBrokerURL)
	}
	cfg.GroupName = os.Getenv(EnvGroupName)
	if idx := os.Getenv(EnvAllocIndex); idx != "" {
		cfg.ShardIndex = idx
	}
	cfg.FilePath = os.Getenv(EnvFilePath)

	if raw := os.Getenv(EnvMaxLineCount); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return cfg, errors.Wrapf(ErrInvalidConfig, "%s=%q is not a positive integer", EnvMaxLineCount, raw)
		}
		cfg.MaxLineCount = n
	}

	switch cfg.Kind {
	case KindPubSub:
		if cfg.ConnectionString == "" {
			return cfg, errors.Wrapf(ErrInvalidConfig, "missing %s", EnvConnectionString)
		}
		if cfg.GroupName == "" {
			return cfg, errors.Wrapf(ErrInvalidConfig, "missing %s", EnvGroupName)
		}
	case KindFile:
		if cfg.FilePath == "" {
			return cfg, errors.Wrapf(ErrInvalidConfig, "missing %s", EnvFilePath)
		}
	}
	return cfg, nil
}

func parseKind(raw string) Kind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "REDIS", "PUBSUB", "NATS":
		return KindPubSub
	case "FILE":
		return KindFile
	default:
		return KindConsole
	}
}

func envLevel() Level {
	for _, key := range []string{EnvRustLog, EnvLevel} {
		if raw := os.Getenv(key); raw != "" {
			if level, err := types.ParseLevel(raw); err == nil {
				return level
			}
		}
	}
	return LevelInfo
}

// InitFromEnv installs the sink described by LoadEnv on r.
func (r *Registry) InitFromEnv(ctx context.Context, opts ...Option) (LogSink, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	switch env.Kind {
	case KindPubSub:
		cfg := DefaultPubSubConfig(env.ConnectionString, env.GroupName)
		cfg.ShardIndex = env.ShardIndex
		cfg.MinLevel = env.MinLevel
		sink, err := r.InitPubSub(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case KindFile:
		cfg := DefaultFileConfig(env.FilePath)
		cfg.MinLevel = env.MinLevel
		if env.MaxLineCount > 0 {
			cfg.MaxLineCount = env.MaxLineCount
		}
		sink, err := r.InitFile(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		sink, err := r.InitConsole(ConsoleConfig{MinLevel: env.MinLevel}, opts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
}

// InitFromEnv installs the process-wide sink described by LoadEnv.
func InitFromEnv(ctx context.Context, opts ...Option) (LogSink, error) {
	return std.InitFromEnv(ctx, opts...)
}
