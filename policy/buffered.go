package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/types"
)

// DefaultBatchRecords is the archive batch size.
const DefaultBatchRecords = 500

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords flushes the buffer once it holds this many records.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferRecords int

	// MaxBufferBytes flushes the buffer once the buffered record bodies
	// reach this many bytes. Zero means no limit.
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRecords: DefaultBatchRecords,
		MaxBufferBytes:   8 * 1024 * 1024, // 8 MB
	}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferRecords or MaxBufferBytes must be set")

// BufferedPolicy implements batched delivery.
//
//   - Bounded buffer with explicit limits; reaching a limit flushes
//   - Records are never dropped
//   - At-least-once: a failed flush keeps the whole buffer for the next
//     attempt, so a retried batch may be written twice
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state only
	buffer      []types.Record
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]types.Record, 0, max(config.MaxBufferRecords, 100)),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers the record and flushes when a limit is reached.
func (p *BufferedPolicy) Ingest(ctx context.Context, rec types.Record) error {
	p.mu.Lock()
	p.stats.incTotalLocked()
	p.buffer = append(p.buffer, rec)
	p.bufferBytes += recordSize(rec)
	full := p.isFull()
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// isFull reports whether a limit has been reached. Caller must hold mu.
func (p *BufferedPolicy) isFull() bool {
	if p.config.MaxBufferRecords > 0 && len(p.buffer) >= p.config.MaxBufferRecords {
		return true
	}
	return p.config.MaxBufferBytes > 0 && p.bufferBytes >= p.config.MaxBufferBytes
}

// Flush writes all buffered records to the sink as one batch.
// The buffer is cleared only after the sink accepted it.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	batch := p.buffer
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.WriteRecords(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logFlushFailure(len(batch), err)
		return err
	}

	p.mu.Lock()
	p.stats.incPersistedLocked(int64(len(batch)))
	// Records ingested while the batch was in flight stay buffered.
	rest := p.buffer[len(batch):]
	p.buffer = append(make([]types.Record, 0, max(p.config.MaxBufferRecords, 100)), rest...)
	p.bufferBytes = 0
	for _, r := range p.buffer {
		p.bufferBytes += recordSize(r)
	}
	p.mu.Unlock()

	p.logFlush(len(batch))
	return nil
}

// Close flushes remaining records and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	flushErr := p.Flush(context.Background())
	return errors.Join(flushErr, p.sink.Close())
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

// recordSize is the byte weight of a record in the buffer.
func recordSize(r types.Record) int64 {
	return int64(len(r.Body) + len(r.ID) + len(r.Index))
}

func (p *BufferedPolicy) logFlush(n int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("batch flushed", map[string]any{
		"records": n,
		"policy":  "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(n int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"records": n,
		"error":   err.Error(),
		"policy":  "buffered",
	})
}
