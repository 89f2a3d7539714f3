// Package resolve implements the id-set resolution engine.
//
// A working set of identifiers is partitioned into chunks that are resolved
// sequentially, either with one multi-get per chunk or, when a filter query is
// given, with one filtered single-shot search per identifier. Every
// identifier leaves the working set exactly once: as found (its records are
// emitted) or into the MissingSet.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/normalize"
	"github.com/justapithecus/es2json/scan"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// Kind is the per-identifier outcome of a lookup.
type Kind int

const (
	Found Kind = iota
	Missing
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case Missing:
		return "missing"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the explicit outcome for one identifier.
type Result struct {
	Kind    Kind
	ID      string
	Records []types.Record
	Err     error
}

// Request describes one resolution.
type Request struct {
	Target store.Target
	IDs    *types.IDSet
	// ChunkSize bounds the identifiers per chunk. Defaults to types.DefaultChunkSize.
	ChunkSize int
	// Query is the search body. When it carries a "query" clause each id is
	// looked up with that clause AND an ids clause; any other body leaves
	// the chunks on multi-get.
	Query json.RawMessage
}

// Summary is the result of a resolution. Missing is the MissingSet;
// Remaining holds identifiers never evaluated because the run stopped early.
type Summary struct {
	Found     int
	Emitted   int
	Missing   *types.IDSet
	Remaining []string
	Chunks    int
}

// CheckpointFunc is called after each completed chunk with the identifiers
// still pending and the MissingSet so far. A checkpoint error stops the run.
type CheckpointFunc func(remaining []string, missing *types.IDSet) error

// EmitFunc receives each found record in working-set order.
type EmitFunc func(types.Record) error

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCollector records chunk, id and store-call metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithCheckpoint installs a hook run after every completed chunk.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(e *Engine) { e.checkpoint = fn }
}

// WithProgress sets where verbose chunk progress lines are written.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// Engine resolves id sets against a store.
type Engine struct {
	st         store.Store
	norm       *normalize.Normalizer
	logger     *log.Logger
	collector  *metrics.Collector
	checkpoint CheckpointFunc
	progress   io.Writer
}

// New creates an Engine.
func New(st store.Store, norm *normalize.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		st:     st,
		norm:   norm,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve runs the resolution. On error the returned Summary is still
// populated: Remaining holds the failed chunk and everything after it.
func (e *Engine) Resolve(ctx context.Context, req Request, emit EmitFunc) (*Summary, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = types.DefaultChunkSize
	}

	pending := req.IDs.Slice()
	sum := &Summary{Missing: types.NewIDSet()}
	filtered := HasQuery(req.Query)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			sum.Remaining = pending
			return sum, err
		}

		n := min(chunkSize, len(pending))
		chunk := pending[:n]

		results, err := e.lookupChunk(ctx, req, chunk, filtered)
		if err != nil {
			sum.Remaining = pending
			return sum, err
		}

		for _, r := range results {
			if r.Kind == Fatal {
				sum.Remaining = pending
				return sum, r.Err
			}
		}

		found := 0
		for _, r := range results {
			if r.Kind != Found {
				continue
			}
			for _, rec := range r.Records {
				if err := emit(rec); err != nil {
					sum.Remaining = pending
					return sum, fmt.Errorf("emit %s: %w", r.ID, err)
				}
				sum.Emitted++
				e.collector.IncDocsEmitted()
			}
			found++
		}
		sum.Found += found
		for _, r := range results {
			if r.Kind == Missing {
				sum.Missing.Add(r.ID)
			}
		}

		// Next generation: a fresh slice, never the shared backing array.
		next := make([]string, len(pending)-n)
		copy(next, pending[n:])
		pending = next

		sum.Chunks++
		e.collector.IncChunks()
		e.collector.AddIDsFound(found)
		e.collector.AddIDsMissing(len(results) - found)
		e.reportProgress(req.IDs.Len()-len(pending), req.IDs.Len())

		if e.checkpoint != nil {
			if err := e.checkpoint(pending, sum.Missing); err != nil {
				sum.Remaining = pending
				return sum, fmt.Errorf("checkpoint after chunk %d: %w", sum.Chunks, err)
			}
		}
	}

	e.logger.Debug("resolution complete", map[string]any{
		"found":   sum.Found,
		"missing": sum.Missing.Len(),
		"chunks":  sum.Chunks,
	})
	return sum, nil
}

func (e *Engine) lookupChunk(ctx context.Context, req Request, chunk []string, filtered bool) ([]Result, error) {
	if filtered {
		return e.filteredChunk(ctx, req, chunk)
	}
	return e.multiGetChunk(ctx, req, chunk)
}

// multiGetChunk resolves a chunk with one multi-get round trip.
func (e *Engine) multiGetChunk(ctx context.Context, req Request, chunk []string) ([]Result, error) {
	e.collector.IncStoreCall(string(store.OpMultiGet))
	slots, err := e.st.MultiGet(ctx, store.MultiGetRequest{
		Target: req.Target,
		IDs:    chunk,
		Source: e.norm.SourceFilter(),
	})
	if err != nil {
		e.collector.IncStoreError(string(store.OpMultiGet))
		return nil, fmt.Errorf("multi-get %d ids from %s: %w", len(chunk), req.Target.Index, err)
	}

	byID := make(map[string]store.Slot, len(slots))
	for _, s := range slots {
		if _, dup := byID[s.ID]; !dup {
			byID[s.ID] = s
		}
	}

	results := make([]Result, 0, len(chunk))
	for _, id := range chunk {
		results = append(results, e.slotResult(id, byID))
	}
	return results, nil
}

func (e *Engine) slotResult(id string, byID map[string]store.Slot) Result {
	slot, ok := byID[id]
	switch {
	case !ok:
		// The store returned no slot for this id; it was looked up and not found.
		return Result{Kind: Missing, ID: id}
	case slot.Err != nil:
		return Result{Kind: Fatal, ID: id, Err: fmt.Errorf("multi-get %s: %w", id, slot.Err)}
	case !slot.Found:
		return Result{Kind: Missing, ID: id}
	}

	rec, err := e.norm.Normalize(slot.Hit)
	if err != nil {
		return Result{Kind: Fatal, ID: id, Err: err}
	}
	return Result{Kind: Found, ID: id, Records: []types.Record{rec}}
}

// filteredChunk resolves each id with the filter query AND an ids clause,
// through the scan engine's single-shot path.
func (e *Engine) filteredChunk(ctx context.Context, req Request, chunk []string) ([]Result, error) {
	results := make([]Result, 0, len(chunk))
	for _, id := range chunk {
		body, err := FilteredQuery(req.Query, id)
		if err != nil {
			return nil, err
		}

		s := scan.New(e.st, e.norm, scan.Config{
			Target: req.Target,
			Query:  body,
			Window: &types.Window{From: 0, Size: filteredWindow},
		}, scan.WithLogger(e.logger), scan.WithCollector(e.collector))

		var recs []types.Record
		for s.Next(ctx) {
			recs = append(recs, s.Record())
		}
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("filtered lookup of %s: %w", id, err)
		}

		if len(recs) == 0 {
			results = append(results, Result{Kind: Missing, ID: id})
			continue
		}
		results = append(results, Result{Kind: Found, ID: id, Records: recs})
	}
	return results, nil
}

// filteredWindow bounds the single-shot search of one id. An id matches at
// most one document per index, so this only matters for multi-index targets.
const filteredWindow = 100

// HasQuery reports whether body is a JSON object with a "query" key.
func HasQuery(body json.RawMessage) bool {
	if len(body) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	_, ok := fields["query"]
	return ok
}

// FilteredQuery composes {"query":{"bool":{"must":[<query>,{"ids":{"values":[id]}}]}}}
// from a search body carrying a "query" clause.
func FilteredQuery(filter json.RawMessage, id string) (json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(filter, &body); err != nil {
		return nil, &types.ConfigError{Field: "body", Msg: "filter query must be a JSON object", Err: err}
	}
	clause, ok := body["query"]
	if !ok {
		return nil, types.NewConfigError("body", `filter body has no "query" clause`)
	}

	idsClause, err := json.Marshal(map[string]any{
		"ids": map[string]any{"values": []string{id}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode ids clause: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []json.RawMessage{clause, idsClause},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode filtered query: %w", err)
	}
	return out, nil
}

func (e *Engine) reportProgress(done, total int) {
	if e.progress == nil {
		return
	}
	fmt.Fprintf(e.progress, "%d/%d\n", done, total)
}
