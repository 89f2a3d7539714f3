package reader

import "errors"

// ParseReportRecord converts an archived run report record (map[string]any)
// to a ReportSummary.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseReportRecord(record map[string]any) (*ReportSummary, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	r := &ReportSummary{
		RunID:        toString(record["run_id"]),
		Index:        toString(record["index"]),
		Day:          toString(record["day"]),
		Mode:         toString(record["mode"]),
		Outcome:      toString(record["outcome"]),
		Message:      toString(record["message"]),
		ExitCode:     toInt64(record["exit_code"]),
		DurationMs:   toInt64(record["duration_ms"]),
		Emitted:      toInt64(record["emitted"]),
		Found:        toInt64(record["found"]),
		MissingCount: toInt64(record["missing_count"]),
		Remaining:    toInt64(record["remaining"]),
		Missing:      toStrings(record["missing"]),
		CompletedAt:  toString(record["completed_at"]),
	}

	if m, ok := record["metrics"].(map[string]any); ok {
		r.StoreCalls = toCounts(m["store_calls"])
	}

	// The write path always populates these; missing values indicate
	// a malformed record.
	if r.RunID == "" {
		return nil, errors.New("report record missing required field: run_id")
	}
	if r.Outcome == "" {
		return nil, errors.New("report record missing required field: outcome")
	}

	return r, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// toCounts converts a counter map from Lode record format.
// Handles both map[string]int64 (direct) and map[string]any (JSON round-trip).
func toCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
