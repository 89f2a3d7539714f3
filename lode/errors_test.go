package lode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"testing"
)

const testSegment = "datasets/es2json/partitions/index=logs/day=2026-10-19/run_id=run-001/record_kind=document/seg-0001.jsonl"

func TestClassifyError_Messages(t *testing.T) {
	cases := map[error][]string{
		ErrTimeout: {
			"context deadline exceeded",
			"operation timed out",
			"put object: connection timeout after 30s",
		},
		ErrAccessDenied: {
			"AccessDenied: you do not have access to bucket harvests",
			"api error Forbidden",
			"PutObject: https response error StatusCode: 403",
		},
		ErrPermissionDenied: {
			"open /var/archive/es2json: permission denied",
			"mkdir /var/archive: EACCES",
		},
		ErrDiskFull: {
			"write " + testSegment + ": no space left on device",
			"ENOSPC",
			"quota exceeded for volume",
		},
		ErrNotFound: {
			"open /var/archive/manifest.json: no such file or directory",
			"NoSuchKey: The specified key does not exist.",
			"GetObject: StatusCode: 404",
		},
		ErrThrottled: {
			"SlowDown: Please reduce your request rate.",
			"StatusCode: 429 TooManyRequests",
			"request throttled",
		},
		ErrAuth: {
			"NoCredentialProviders: no valid providers in chain",
			"ExpiredToken: the security token included in the request is expired",
			"status 401 Unauthorized",
		},
		ErrNetwork: {
			"dial tcp 10.0.0.5:9000: connect: connection refused",
			"no route to host",
			"lookup minio.internal: dns server misbehaving",
		},
		ErrUnclassified: {
			"segment checksum mismatch",
		},
	}

	for want, msgs := range cases {
		for _, msg := range msgs {
			t.Run(msg, func(t *testing.T) {
				if got := classifyError(errors.New(msg)); got != want {
					t.Errorf("classifyError(%q) = %v, want %v", msg, got, want)
				}
			})
		}
	}
}

func TestClassifyError_Typed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", fmt.Errorf("flush batch: %w", context.DeadlineExceeded), ErrTimeout},
		{"enospc", &fs.PathError{Op: "write", Path: testSegment, Err: syscall.ENOSPC}, ErrDiskFull},
		{"permission", &fs.PathError{Op: "open", Path: "/var/archive", Err: fs.ErrPermission}, ErrPermissionDenied},
		{"not exist", fmt.Errorf("read manifest: %w", os.ErrNotExist), ErrNotFound},
		{"net timeout", timeoutError{}, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o" }
func (timeoutError) Timeout() bool { return true }

func TestWrapErrors(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "/var/archive", Err: fs.ErrPermission}

	tests := []struct {
		name   string
		wrap   func(error) error
		wantOp string
		inMsg  string
	}{
		{"write", func(e error) error { return WrapWriteError(e, testSegment) }, "write", testSegment},
		{"read", func(e error) error { return WrapReadError(e, "datasets/es2json") }, "read", "datasets/es2json"},
		{"init", func(e error) error { return WrapInitError(e, "es2json") }, "init", "es2json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wrap(nil) != nil {
				t.Fatal("wrapping nil should return nil")
			}

			err := tt.wrap(cause)
			var se *StorageError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StorageError, got %T", err)
			}
			if se.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", se.Op, tt.wantOp)
			}
			if !errors.Is(err, ErrPermissionDenied) {
				t.Error("kind should match ErrPermissionDenied")
			}
			if !errors.Is(err, fs.ErrPermission) {
				t.Error("cause should stay in the chain")
			}
			if !strings.HasPrefix(err.Error(), "archive "+tt.wantOp) || !strings.Contains(err.Error(), tt.inMsg) {
				t.Errorf("Error() = %q", err.Error())
			}
		})
	}
}

func TestWrap_KeepsInnerClassification(t *testing.T) {
	inner := WrapReadError(errors.New("NoSuchKey"), "manifest.json")
	outer := WrapWriteError(fmt.Errorf("append report: %w", inner), testSegment)

	var se *StorageError
	if !errors.As(outer, &se) {
		t.Fatal("expected *StorageError")
	}
	if se.Op != "read" || !errors.Is(outer, ErrNotFound) {
		t.Errorf("outer classification = %s/%v, want read/not found", se.Op, se.Kind)
	}
}

func TestStorageError_NoPath(t *testing.T) {
	err := NewStorageError(ErrAuth, "init", "", errors.New("no credentials"))
	if got := err.Error(); got != "archive init: authentication failed: no credentials" {
		t.Errorf("Error() = %q", got)
	}
}
