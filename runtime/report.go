package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/types"
)

// MaxReportedMissing caps the missing ids listed in a report.
// MissingCount always carries the full count.
const MaxReportedMissing = 1000

// RunReport is the structured JSON report written by --report and archived
// with the run's records.
type RunReport struct {
	RunID      string              `json:"run_id"`
	Mode       types.Mode          `json:"mode"`
	Index      string              `json:"index"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`

	Emitted      int64    `json:"emitted"`
	Found        int      `json:"found"`
	MissingCount int      `json:"missing_count"`
	Remaining    int      `json:"remaining"`
	Missing      []string `json:"missing,omitempty"`

	Delivery *ReportDelivery   `json:"delivery"`
	Metrics  *metrics.Snapshot `json:"metrics"`
}

// ReportDelivery holds the delivery policy stats in the report.
type ReportDelivery struct {
	RecordsReceived  int64 `json:"records_received"`
	RecordsPersisted int64 `json:"records_persisted"`
	Flushes          int64 `json:"flushes"`
	Errors           int64 `json:"errors"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, exitCode int) *RunReport {
	missing := result.Missing.Slice()
	report := &RunReport{
		RunID:        result.RunMeta.RunID,
		Mode:         result.RunMeta.Mode,
		Index:        result.RunMeta.Index,
		Outcome:      result.Outcome.Status,
		Message:      result.Outcome.Message,
		ExitCode:     exitCode,
		DurationMs:   result.Duration.Milliseconds(),
		Emitted:      result.Emitted,
		Found:        result.Found,
		MissingCount: len(missing),
		Remaining:    len(result.Remaining),
		Missing:      missing[:min(len(missing), MaxReportedMissing)],
		Delivery: &ReportDelivery{
			RecordsReceived:  result.PolicyStats.TotalRecords,
			RecordsPersisted: result.PolicyStats.RecordsPersisted,
			Flushes:          result.PolicyStats.FlushCount,
			Errors:           result.PolicyStats.Errors,
		},
		Metrics: &snap,
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
