package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for store failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrIndexNotFound indicates the target index or type does not exist.
	// Fatal for the whole run; distinct from a per-document miss.
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnavailable indicates the store could not be reached (connection refused, DNS, 502/503, 429).
	ErrUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates a request exceeded its deadline (408/504 or client timeout).
	ErrTimeout = errors.New("store request timed out")

	// ErrRejected indicates the store refused the request (4xx other than 404/408/429).
	ErrRejected = errors.New("store rejected request")

	// ErrServer indicates an internal store failure (5xx).
	ErrServer = errors.New("store server error")
)

// Error wraps a store failure with its classification.
type Error struct {
	// Kind is the sentinel used for classification.
	Kind error
	// Op is the store operation that failed.
	Op Op
	// Index is the index involved, if any.
	Index string
	// Status is the HTTP status, or 0 for transport failures.
	Status int
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Op))
	if e.Index != "" {
		b.WriteString(" ")
		b.WriteString(e.Index)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified store error.
func NewError(kind error, op Op, index string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Index: index, Status: status, Err: err}
}

// IsTransient reports whether err is an I/O-level failure that a later rerun
// may not hit again. The engines never retry it themselves.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer)
}

// ClassifyTransport classifies a failure that produced no HTTP response.
func ClassifyTransport(op Op, index string, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return NewError(context.Canceled, op, index, 0, err)
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeoutErr) && timeoutErr.Timeout()) {
		return NewError(ErrTimeout, op, index, 0, err)
	}
	return NewError(ErrUnavailable, op, index, 0, err)
}

// ClassifyStatus classifies an error response. errType is the store's error
// type (e.g. "index_not_found_exception"), empty when unknown.
func ClassifyStatus(op Op, index string, status int, errType string, err error) *Error {
	if errType == "index_not_found_exception" || errType == "type_missing_exception" {
		return NewError(ErrIndexNotFound, op, index, status, err)
	}

	if errType == "search_context_missing_exception" {
		return NewError(ErrRejected, op, index, status, err)
	}

	var kind error
	switch {
	case status == http.StatusNotFound && op != OpScroll && op != OpClearScroll:
		kind = ErrIndexNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = ErrTimeout
	case status == http.StatusTooManyRequests || status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		kind = ErrUnavailable
	case status >= 500:
		kind = ErrServer
	default:
		kind = ErrRejected
	}
	return NewError(kind, op, index, status, err)
}
