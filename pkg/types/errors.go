package types

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorCode classifies failures raised by sink workers and transports.
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error
	ErrCodeUnknown ErrorCode = iota

	// Local file errors
	ErrCodeFileOpen
	ErrCodeFileWrite
	ErrCodeFileFlush
	ErrCodeFileRotate
	ErrCodeFileLock

	// Broker errors
	ErrCodeBrokerConnect
	ErrCodeBrokerPublish

	// Wire record errors
	ErrCodeEncode
)

// String returns a short name for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeFileOpen:
		return "FileOpen"
	case ErrCodeFileWrite:
		return "FileWrite"
	case ErrCodeFileFlush:
		return "FileFlush"
	case ErrCodeFileRotate:
		return "FileRotate"
	case ErrCodeFileLock:
		return "FileLock"
	case ErrCodeBrokerConnect:
		return "BrokerConnect"
	case ErrCodeBrokerPublish:
		return "BrokerPublish"
	case ErrCodeEncode:
		return "Encode"
	default:
		return "Unknown"
	}
}

// SinkError is a failure with the operation and target that produced it.
type SinkError struct {
	Code   ErrorCode
	Op     string // Operation that failed (e.g., "rotate", "write", "publish")
	Target string // File path or broker channel
	Err    error
	Time   time.Time
}

// NewSinkError creates a SinkError stamped with the current time.
func NewSinkError(code ErrorCode, op, target string, err error) *SinkError {
	return &SinkError{
		Code:   code,
		Op:     op,
		Target: target,
		Err:    err,
		Time:   time.Now(),
	}
}

// Error implements the error interface
func (e *SinkError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Target, e.Err)
}

// Unwrap returns the underlying error
func (e *SinkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a SinkError with the same code.
func (e *SinkError) Is(target error) bool {
	t, ok := target.(*SinkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the code of the first SinkError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *SinkError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeUnknown
}
