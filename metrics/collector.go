// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies: store operations are keyed by plain strings so
// the engines can record them without an import cycle.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`
	RunsCanceled  int64 `json:"runs_canceled"`

	// Retrieval
	DocsEmitted int64 `json:"docs_emitted"`
	IDsFound    int64 `json:"ids_found"`
	IDsMissing  int64 `json:"ids_missing"`
	Chunks      int64 `json:"chunks"`
	ScrollPages int64 `json:"scroll_pages"`

	// Store
	StoreCalls  map[string]int64 `json:"store_calls"`
	StoreErrors map[string]int64 `json:"store_errors"`

	// Archive
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Dimensions (informational, set at construction)
	Mode           string `json:"mode"`
	Index          string `json:"index"`
	StorageBackend string `json:"storage_backend"`
	RunID          string `json:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	runsCanceled  int64

	docsEmitted int64
	idsFound    int64
	idsMissing  int64
	chunks      int64
	scrollPages int64

	storeCalls  map[string]int64
	storeErrors map[string]int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	mode           string
	index          string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is the archive backend ("fs", "s3") or empty when not archiving.
func NewCollector(mode, index, storageBackend, runID string) *Collector {
	return &Collector{
		storeCalls:     make(map[string]int64),
		storeErrors:    make(map[string]int64),
		mode:           mode,
		index:          index,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunFailed records a run failure (config, store or sink).
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// IncRunCanceled records a run stopped by cancellation.
func (c *Collector) IncRunCanceled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCanceled++
	c.mu.Unlock()
}

// --- Retrieval ---

// IncDocsEmitted records one record handed to the sink.
func (c *Collector) IncDocsEmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.docsEmitted++
	c.mu.Unlock()
}

// AddIDsFound records identifiers resolved as found.
func (c *Collector) AddIDsFound(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.idsFound += int64(n)
	c.mu.Unlock()
}

// AddIDsMissing records identifiers confirmed absent.
func (c *Collector) AddIDsMissing(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.idsMissing += int64(n)
	c.mu.Unlock()
}

// IncChunks records one completed resolution chunk.
func (c *Collector) IncChunks() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunks++
	c.mu.Unlock()
}

// IncScrollPages records one page fetched by the scan engine.
func (c *Collector) IncScrollPages() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.scrollPages++
	c.mu.Unlock()
}

// --- Store ---
// Store counters are per round trip. A multi-get of N ids counts as 1 call.

// IncStoreCall records one store round trip for op.
func (c *Collector) IncStoreCall(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storeCalls[op]++
	c.mu.Unlock()
}

// IncStoreError records a failed store round trip for op.
func (c *Collector) IncStoreError(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storeErrors[op]++
	c.mu.Unlock()
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful archive write (per batch).
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteSuccess++
	c.mu.Unlock()
}

// IncArchiveWriteFailure records a failed archive write (per batch).
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,
		RunsCanceled:  c.runsCanceled,

		DocsEmitted: c.docsEmitted,
		IDsFound:    c.idsFound,
		IDsMissing:  c.idsMissing,
		Chunks:      c.chunks,
		ScrollPages: c.scrollPages,

		StoreCalls:  copyCounts(c.storeCalls),
		StoreErrors: copyCounts(c.storeErrors),

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		Mode:           c.mode,
		Index:          c.index,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
