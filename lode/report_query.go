package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoReportFound is returned when no run report exists in the dataset.
var ErrNoReportFound = errors.New("no run report found")

// QueryLatestReport finds and reads the most recent run report from Lode.
// Filters by runID and index if non-empty.
// Returns the raw record map or ErrNoReportFound if none exist.
func QueryLatestReport(ctx context.Context, ds lode.Dataset, runID, index string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, DefaultDataset+"/snapshots")
	}

	// Snapshots are ordered by creation time; walk newest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		if !isReportSnapshot(snap) {
			continue
		}
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}
		if !snapshotMatchesFilter(snap, "index", index) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", DefaultDataset, snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindReport {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			if index != "" && toString(record["index"]) != index {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoReportFound
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
