package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/justapithecus/es2json/types"
)

// RecordKind discriminator values. record_kind is also the last partition key.
const (
	RecordKindDocument = "document"
	RecordKindReport   = "run_report"
)

// toDocumentRecordMap converts a harvested record to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toDocumentRecordMap(r types.Record, seq int64, cfg Config) map[string]any {
	body := r.Body
	if len(body) == 0 {
		body = types.EmptyBody
	}
	return map[string]any{
		"record_kind":  RecordKindDocument,
		"seq":          seq,
		"doc_id":       r.ID,
		"source_index": r.Index,
		"doc":          json.RawMessage(body),
		"index":        cfg.Index,
		"day":          cfg.Day,
		"run_id":       cfg.RunID,
	}
}

// toReportRecordMap flattens a run report into a storage map.
// The report's own fields are kept; partition keys and the completion
// time are added.
func toReportRecordMap(report any, completedAt time.Time, cfg Config) (map[string]any, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("run report must encode as an object: %w", err)
	}

	m["record_kind"] = RecordKindReport
	m["completed_at"] = completedAt.UTC().Format(time.RFC3339Nano)
	m["index"] = cfg.Index
	m["day"] = cfg.Day
	m["run_id"] = cfg.RunID
	return m, nil
}
