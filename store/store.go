// Package store defines the document store capability the retrieval engines
// depend on: point-get, scan/paginate and multi-get.
//
// The Elasticsearch implementation lives in store/elastic. MemoryStore is an
// in-process implementation used by tests and dry runs.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Op names a store operation for metrics, errors and fault injection.
type Op string

// Store operations.
const (
	OpGet         Op = "get"
	OpSearch      Op = "search"
	OpScroll      Op = "scroll"
	OpClearScroll Op = "clear_scroll"
	OpMultiGet    Op = "mget"
	OpInfo        Op = "info"
)

// Target addresses an index and an optional legacy mapping type.
type Target struct {
	Index string
	Type  string
}

// SourceFilter controls which document fields the store returns.
type SourceFilter struct {
	// Disabled suppresses the field set entirely (_source=false).
	Disabled bool
	// Includes restricts the field set to matching paths.
	Includes []string
	// Excludes removes matching paths after includes are applied.
	Excludes []string
}

// Hit is a single document returned by the store.
type Hit struct {
	Index string
	Type  string
	ID    string
	// Score is nil when the operation does not rank (get, mget, sorted searches).
	Score *float64
	// Source is the raw field set. Nil when the source was disabled.
	Source json.RawMessage
}

// Page is one batch of search or scroll results.
type Page struct {
	// ScrollID continues the cursor. Empty for bounded (non-scroll) searches.
	ScrollID string
	// Total is the total hit count reported by the store.
	Total int64
	Hits  []Hit
}

// Slot is the explicit per-id outcome of a multi-get.
type Slot struct {
	ID    string
	Found bool
	Hit   Hit
	// Err is a per-slot failure reported by the store, classified as *Error.
	Err error
}

// GetRequest fetches one document by id.
type GetRequest struct {
	Target
	ID     string
	Source SourceFilter
}

// SearchRequest runs a query.
// A positive KeepAlive opens a scroll cursor; zero runs a bounded from/size search.
type SearchRequest struct {
	Target
	Body      json.RawMessage
	From      int
	Size      int
	KeepAlive time.Duration
	Source    SourceFilter
}

// MultiGetRequest fetches many documents by id in one round trip.
type MultiGetRequest struct {
	Target
	IDs    []string
	Source SourceFilter
}

// Store is the document store capability.
// Implementations own version skew and their own retry policy; callers never retry.
type Store interface {
	// Get returns the hit and true, or false when the document does not exist.
	// A missing index is an error matching ErrIndexNotFound.
	Get(ctx context.Context, req GetRequest) (Hit, bool, error)

	// Search runs the query and returns the first page.
	Search(ctx context.Context, req SearchRequest) (*Page, error)

	// Scroll continues a cursor. An empty page means the cursor is exhausted.
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*Page, error)

	// ClearScroll releases a cursor.
	ClearScroll(ctx context.Context, scrollID string) error

	// MultiGet returns one slot per requested id.
	MultiGet(ctx context.Context, req MultiGetRequest) ([]Slot, error)
}
