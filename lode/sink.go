// Package lode archives harvested records and run reports to a Lode dataset.
//
// Records land under a Hive layout index/day/run_id/record_kind with the
// JSONL codec, on the local filesystem or S3.
package lode

import (
	"context"
	"time"

	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/types"
)

// DefaultDataset is the archive dataset id.
const DefaultDataset = "es2json"

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds archive partition configuration.
// All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID (normally "es2json").
	Dataset string
	// Index is the partition key for the harvested index.
	Index string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for run identifier.
	RunID string
}

// ConfigFor derives the archive partition config of a run.
func ConfigFor(meta *types.RunMeta) Config {
	return Config{
		Dataset: DefaultDataset,
		Index:   meta.Index,
		Day:     DeriveDay(meta.StartedAt),
		RunID:   meta.RunID,
	}
}

// Client abstracts the archive storage client.
// LodeClient connects to Lode; stubs are used for testing.
type Client interface {
	// WriteDocuments writes a batch of harvested records.
	// Must preserve ordering within the batch.
	WriteDocuments(ctx context.Context, records []types.Record) error

	// WriteReport writes the final run report.
	WriteReport(ctx context.Context, report any, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new archive sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []types.Record) error {
	return s.client.WriteDocuments(ctx, records)
}

// Close implements policy.Sink. The client stays open for the report write.
func (s *Sink) Close() error {
	return nil
}

// Verify Sink implements policy.Sink.
var _ policy.Sink = (*Sink)(nil)
