// Package types defines core domain types shared by the es2json engines,
// sinks and CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"time"
)

// RunMeta identifies a single harvest run.
type RunMeta struct {
	// RunID is the run identifier. Must be unique per invocation.
	RunID string
	// Index is the target index.
	Index string
	// Mode is the engine serving the run.
	Mode Mode
	// StartedAt is the run start time; it derives the archive day partition.
	StartedAt time.Time
}

// Validate checks run identity.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Mode == "" {
		return errors.New("mode must be non-empty")
	}
	return nil
}

// OutcomeStatus is the final classification of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess: the run drained its cursor or working set. Misses do not fail a run.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeConfigError: the configuration was rejected before any store call.
	OutcomeConfigError OutcomeStatus = "config_error"
	// OutcomeIndexNotFound: the target index or type does not exist.
	OutcomeIndexNotFound OutcomeStatus = "index_not_found"
	// OutcomeStoreFailure: the store was unreachable, timed out or answered with an error.
	OutcomeStoreFailure OutcomeStatus = "store_failure"
	// OutcomeSinkFailure: records could not be written.
	OutcomeSinkFailure OutcomeStatus = "sink_failure"
	// OutcomeCanceled: the run was interrupted at a chunk or scroll boundary.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// RunOutcome is the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
}
