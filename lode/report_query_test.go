package lode

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
)

type testReport struct {
	RunID    string `json:"run_id"`
	Outcome  string `json:"outcome"`
	Emitted  int64  `json:"emitted"`
	ExitCode int    `json:"exit_code"`
}

func writeReport(t *testing.T, store lode.Store, cfg Config, report testReport, at time.Time) {
	t.Helper()
	client, err := NewLodeClientWithFactory(cfg, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteDocuments(t.Context(), testRecords("a", "b")); err != nil {
		t.Fatalf("WriteDocuments failed: %v", err)
	}
	if err := client.WriteReport(t.Context(), report, at); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
}

func TestQueryLatestReport_WriteAndRead(t *testing.T) {
	store := lode.NewMemory()
	at := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	writeReport(t, store, testConfig("run-001"), testReport{RunID: "run-001", Outcome: "success", Emitted: 42}, at)

	ds, err := NewReadDataset(DefaultDataset, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	record, err := QueryLatestReport(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestReport failed: %v", err)
	}
	if record["record_kind"] != RecordKindReport {
		t.Errorf("record_kind = %v, want %q", record["record_kind"], RecordKindReport)
	}
	if record["outcome"] != "success" {
		t.Errorf("outcome = %v, want success", record["outcome"])
	}
	if toInt64(record["emitted"]) != 42 {
		t.Errorf("emitted = %v, want 42", record["emitted"])
	}
	if record["completed_at"] != "2026-10-19T15:00:00Z" {
		t.Errorf("completed_at = %v", record["completed_at"])
	}
}

func TestQueryLatestReport_LatestWins(t *testing.T) {
	store := lode.NewMemory()
	at := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	writeReport(t, store, testConfig("run-001"), testReport{RunID: "run-001", Outcome: "store_failure", ExitCode: 1}, at)
	writeReport(t, store, testConfig("run-002"), testReport{RunID: "run-002", Outcome: "success"}, at.Add(time.Hour))

	ds, err := NewReadDataset(DefaultDataset, sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	record, err := QueryLatestReport(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestReport failed: %v", err)
	}
	if record["run_id"] != "run-002" {
		t.Errorf("run_id = %v, want run-002", record["run_id"])
	}

	record, err = QueryLatestReport(t.Context(), ds, "run-001", "")
	if err != nil {
		t.Fatalf("QueryLatestReport(run-001) failed: %v", err)
	}
	if record["outcome"] != "store_failure" {
		t.Errorf("outcome = %v, want store_failure", record["outcome"])
	}
}

func TestQueryLatestReport_FilterByIndex(t *testing.T) {
	store := lode.NewMemory()
	at := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

	other := testConfig("run-other")
	other.Index = "metrics"
	writeReport(t, store, testConfig("run-logs"), testReport{RunID: "run-logs"}, at)
	writeReport(t, store, other, testReport{RunID: "run-other"}, at.Add(time.Minute))

	ds, err := NewReadDataset(DefaultDataset, sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	record, err := QueryLatestReport(t.Context(), ds, "", "logs")
	if err != nil {
		t.Fatalf("QueryLatestReport failed: %v", err)
	}
	if record["run_id"] != "run-logs" {
		t.Errorf("run_id = %v, want run-logs", record["run_id"])
	}

	if _, err := QueryLatestReport(t.Context(), ds, "run-1", "logs"); !errors.Is(err, ErrNoReportFound) {
		t.Errorf("err = %v, want ErrNoReportFound", err)
	}
}

func TestQueryLatestReport_Empty(t *testing.T) {
	ds, err := NewReadDataset(DefaultDataset, lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	_, err = QueryLatestReport(t.Context(), ds, "", "")
	if err == nil {
		t.Fatal("expected an error for an empty dataset")
	}
	if !errors.Is(err, ErrNoReportFound) {
		var se *StorageError
		if !errors.As(err, &se) {
			t.Errorf("err = %v, want ErrNoReportFound or a StorageError", err)
		}
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"datasets/es2json/index=logs/run_id=run-1/record_kind=run_report/a.jsonl", true},
		{"datasets/es2json/index=logs/run_id=run-10/record_kind=run_report/a.jsonl", false},
		{"run_id=run-1", true},
	}
	for _, tt := range tests {
		if got := matchesPartitionValue(tt.path, "run_id", "run-1"); got != tt.want {
			t.Errorf("matchesPartitionValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
