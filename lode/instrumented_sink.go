package lode

import (
	"context"

	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/types"
)

// InstrumentedSink wraps a policy.Sink and counts archive writes.
// Each WriteRecords call increments the archive write success or failure
// counter on the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteRecords delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteRecords(ctx context.Context, records []types.Record) error {
	err := s.inner.WriteRecords(ctx, records)
	if err != nil {
		s.collector.IncArchiveWriteFailure()
	} else {
		s.collector.IncArchiveWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements policy.Sink.
var _ policy.Sink = (*InstrumentedSink)(nil)
