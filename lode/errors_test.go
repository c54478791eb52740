package lode

import (
	"errors"
	"fmt"
	"testing"
)

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string { return e.msg }
func (e *timeoutError) Timeout() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"operation timed out", ErrTimeout},

		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"Forbidden", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},

		{"permission denied for /data/captures", ErrPermissionDenied},
		{"open /tmp/file: EACCES", ErrPermissionDenied},

		{"write /data/out: no space left on device", ErrDiskFull},
		{"ENOSPC: write failed", ErrDiskFull},
		{"quota exceeded for user", ErrDiskFull},

		{"no such file or directory", ErrNotFound},
		{"NoSuchKey: The specified key does not exist", ErrNotFound},
		{"received status 404", ErrNotFound},

		{"received status 429", ErrThrottled},
		{"SlowDown: please reduce request rate", ErrThrottled},
		{"TooManyRequests: rate limit exceeded", ErrThrottled},

		{"NoCredentialProviders: no valid credential providers", ErrAuth},
		{"ExpiredToken: the security token has expired", ErrAuth},
		{"received status 401", ErrAuth},

		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"no route to host", ErrNetwork},
		{"DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},

		{"something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := classifyError(errors.New(tt.msg))
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyError_TypedTimeout(t *testing.T) {
	err := fmt.Errorf("put: %w", &timeoutError{msg: "request canceled"})
	if got := classifyError(err); got != ErrTimeout {
		t.Errorf("classifyError = %v, want ErrTimeout", got)
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestStorageError(t *testing.T) {
	orig := errors.New("no space left on device")
	err := WrapWriteError(orig, "datasets/gamelogger")

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if se.Op != "write" || se.Path != "datasets/gamelogger" {
		t.Errorf("op/path = %q/%q", se.Op, se.Path)
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Error("errors.Is(err, ErrDiskFull) = false")
	}
	if !errors.Is(err, orig) {
		t.Error("original error lost from chain")
	}
	if !IsStorageError(err) {
		t.Error("IsStorageError = false")
	}

	// Already classified errors pass through unchanged.
	if again := WrapReadError(err, "other"); again != err {
		t.Errorf("rewrapped error = %v, want original", again)
	}
	if WrapInitError(nil, "x") != nil {
		t.Error("WrapInitError(nil) should be nil")
	}
}
