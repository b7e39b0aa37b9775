package servicelog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wayneeseguin/servicelog/pkg/backends"
	"github.com/wayneeseguin/servicelog/pkg/broker"
	"github.com/wayneeseguin/servicelog/pkg/codec"
	"github.com/wayneeseguin/servicelog/pkg/types"
)

func TestRegistryInstallsOnce(t *testing.T) {
	r := NewRegistry()
	logger, hook := test.NewNullLogger()
	var out bytes.Buffer

	first, err := r.InitConsole(DefaultConsoleConfig(), WithDiagnostics(logger), WithOutput(&out, &out))
	if err != nil {
		t.Fatalf("first InitConsole failed: %v", err)
	}

	_, err = r.InitConsole(DefaultConsoleConfig(), WithDiagnostics(logger))
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("second InitConsole = %v, want ErrAlreadyInstalled", err)
	}
	if r.Sink() != LogSink(first) {
		t.Error("the first sink must stay installed")
	}
	if e := hook.LastEntry(); e == nil || !strings.Contains(e.Message, "refusing to replace") {
		t.Errorf("double registration was not reported loudly: %+v", e)
	}

	// A refused registration must not touch the destination.
	path := filepath.Join(t.TempDir(), "never.log")
	if _, err := r.InitFile(DefaultFileConfig(path), WithDiagnostics(logger)); !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("InitFile = %v, want ErrAlreadyInstalled", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("refused InitFile created %s", path)
	}
}

func TestRegistryFailedInitLeavesSlotEmpty(t *testing.T) {
	r := NewRegistry()
	logger, _ := test.NewNullLogger()

	dialer := func(context.Context, string) (broker.Conn, error) {
		return nil, errors.New("connection refused")
	}
	_, err := r.InitPubSub(context.Background(), DefaultPubSubConfig("redis://nowhere", "api"),
		WithDiagnostics(logger), WithDialer(dialer))
	if types.CodeOf(err) != types.ErrCodeBrokerConnect {
		t.Fatalf("InitPubSub = %v, want connect failure", err)
	}
	if r.Sink() != nil {
		t.Fatal("failed init must not install a sink")
	}

	if _, err := r.InitConsole(DefaultConsoleConfig(), WithDiagnostics(logger)); err != nil {
		t.Errorf("InitConsole after a failed init = %v", err)
	}
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tests := []struct {
		name string
		init func(r *Registry) error
	}{
		{"file without path", func(r *Registry) error {
			_, err := r.InitFile(FileConfig{}, WithDiagnostics(logger))
			return err
		}},
		{"pubsub without connection string", func(r *Registry) error {
			_, err := r.InitPubSub(context.Background(), DefaultPubSubConfig("", "api"), WithDiagnostics(logger))
			return err
		}},
		{"pubsub without group", func(r *Registry) error {
			_, err := r.InitPubSub(context.Background(), DefaultPubSubConfig("redis://x", ""), WithDiagnostics(logger))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if err := tt.init(r); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if r.Sink() != nil {
				t.Error("invalid config installed a sink")
			}
		})
	}
}

func TestInitFileEndToEnd(t *testing.T) {
	r := NewRegistry()
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.log")

	cfg := DefaultFileConfig(path)
	cfg.MinLevel = LevelDebug
	cfg.MaxLineCount = 3
	sink, err := r.InitFile(cfg, WithDiagnostics(logger))
	if err != nil {
		t.Fatalf("InitFile failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		sink.Debugf("line %d", i)
	}
	sink.Trace("filtered")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sink.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if got := readFile(t, path); got != "line 4\nline 5\n" {
		t.Errorf("active file = %q", got)
	}
	if got := readFile(t, path+backends.BackupSuffix); got != "line 1\nline 2\nline 3\n" {
		t.Errorf("backup file = %q", got)
	}
	if m := sink.Metrics(); m.RotationCount != 1 || m.LinesWritten != 5 {
		t.Errorf("rotations/lines = %d/%d", m.RotationCount, m.LinesWritten)
	}

	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestInitPubSubEndToEnd(t *testing.T) {
	s := miniredis.RunT(t)
	uri := fmt.Sprintf("redis://%s/0", s.Addr())

	channels := backends.ChannelNames(backends.DefaultNamespace, "checkout")
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	sub := client.Subscribe(context.Background(), channels.All()...)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	r := NewRegistry()
	logger, _ := test.NewNullLogger()
	cfg := DefaultPubSubConfig(uri, "checkout")
	cfg.ShardIndex = "2"
	cfg.Metadata = codec.Metadata("release=7")
	sink, err := r.InitPubSub(context.Background(), cfg, WithDiagnostics(logger))
	if err != nil {
		t.Fatalf("InitPubSub failed: %v", err)
	}

	sink.Warn("cart abandoned")
	sink.Debug("filtered")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != channels.Warn {
			t.Errorf("published on %q, want %q", msg.Channel, channels.Warn)
		}
		rec, err := codec.Decode(msg.Payload)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if rec.Message != "cart abandoned\n" || rec.Group != "checkout" || rec.Index != "2" ||
			rec.Metadata == nil || *rec.Metadata != "release=7" {
			t.Errorf("record = %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
