// Package reader provides the read-side data access layer for the es2json CLI.
//
// It isolates archive reads from runtime internals: read-only commands see
// flat views decoded from archived Lode records, never runtime types.
package reader

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ReportSummary is the flat view of an archived run report.
type ReportSummary struct {
	RunID        string           `json:"run_id" yaml:"run_id"`
	Index        string           `json:"index" yaml:"index"`
	Day          string           `json:"day" yaml:"day"`
	Mode         string           `json:"mode" yaml:"mode"`
	Outcome      string           `json:"outcome" yaml:"outcome"`
	Message      string           `json:"message" yaml:"message"`
	ExitCode     int64            `json:"exit_code" yaml:"exit_code"`
	DurationMs   int64            `json:"duration_ms" yaml:"duration_ms"`
	Emitted      int64            `json:"emitted" yaml:"emitted"`
	Found        int64            `json:"found" yaml:"found"`
	MissingCount int64            `json:"missing_count" yaml:"missing_count"`
	Remaining    int64            `json:"remaining" yaml:"remaining"`
	Missing      []string         `json:"missing" yaml:"missing"`
	StoreCalls   map[string]int64 `json:"store_calls" yaml:"store_calls"`
	CompletedAt  string           `json:"completed_at" yaml:"completed_at"`
}

// Succeeded reports whether the run finished without failure.
func (r *ReportSummary) Succeeded() bool {
	return r.Outcome == "success"
}

// StoreCallsString renders the store call counters as "op=n" pairs in
// operation order, or "-" when there are none.
func (r *ReportSummary) StoreCallsString() string {
	if len(r.StoreCalls) == 0 {
		return "-"
	}
	ops := slices.Sorted(maps.Keys(r.StoreCalls))
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = fmt.Sprintf("%s=%d", op, r.StoreCalls[op])
	}
	return strings.Join(parts, " ")
}
