package types

import (
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"error", LevelError, false},
		{"WARN", LevelWarn, false},
		{"warning", LevelWarn, false},
		{" info ", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"trace", LevelTrace, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLevel) {
					t.Fatalf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelOrdering(t *testing.T) {
	ordered := []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 1; i < len(ordered); i++ {
		if ordered[i] <= ordered[i-1] {
			t.Errorf("%v should be more severe than %v", ordered[i], ordered[i-1])
		}
	}
	if got := Level(42).String(); got != "LEVEL42" {
		t.Errorf("unknown level string = %q", got)
	}
}

func TestSyncMessageComplete(t *testing.T) {
	msg := SyncMessage()
	if msg.Kind != KindFlush {
		t.Fatalf("sync message kind = %v, want KindFlush", msg.Kind)
	}
	msg.Complete()
	select {
	case <-msg.Done:
	default:
		t.Fatal("Done should be closed after Complete")
	}

	// Plain flush messages have no waiter.
	FlushMessage().Complete()
}

func TestSinkError(t *testing.T) {
	base := NewSinkError(ErrCodeFileWrite, "write", "/var/log/app.log", io.ErrShortWrite)

	if !errors.Is(base, io.ErrShortWrite) {
		t.Error("SinkError should unwrap to the underlying error")
	}
	if !errors.Is(base, &SinkError{Code: ErrCodeFileWrite}) {
		t.Error("SinkError should match another SinkError with the same code")
	}
	if errors.Is(base, &SinkError{Code: ErrCodeFileOpen}) {
		t.Error("SinkError should not match a different code")
	}

	wrapped := errors.Wrap(base, "file sink")
	if got := CodeOf(wrapped); got != ErrCodeFileWrite {
		t.Errorf("CodeOf(wrapped) = %v, want FileWrite", got)
	}
	if got := CodeOf(io.EOF); got != ErrCodeUnknown {
		t.Errorf("CodeOf(io.EOF) = %v, want Unknown", got)
	}

	want := "write failed on /var/log/app.log: short write"
	if base.Error() != want {
		t.Errorf("Error() = %q, want %q", base.Error(), want)
	}
}
