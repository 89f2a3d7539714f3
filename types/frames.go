package types

// Frame type discriminants for msgpack output.
const (
	RecordFrameType     = "record"
	RunSummaryFrameType = "run_summary"
)

// RecordFrame carries one normalized record in msgpack output.
type RecordFrame struct {
	// Type is always "record".
	Type string `msgpack:"type"`
	// Version is the frame format version.
	Version string `msgpack:"version"`
	// RunID is the run that emitted the record.
	RunID string `msgpack:"run_id"`
	// Seq is the monotonic record sequence number, starts at 1.
	Seq int64 `msgpack:"seq"`
	// ID is the document identifier.
	ID string `msgpack:"id"`
	// Index is the source index.
	Index string `msgpack:"index"`
	// Body is the JSON encoding of the record, exactly as NDJSON output would carry it.
	Body []byte `msgpack:"body"`
}

// RunSummaryFrame is the control frame that terminates a msgpack stream.
// It is not a record and does not advance Seq.
type RunSummaryFrame struct {
	// Type is always "run_summary".
	Type string `msgpack:"type"`
	// Version is the frame format version.
	Version string `msgpack:"version"`
	// RunID is the run identifier.
	RunID string `msgpack:"run_id"`
	// Status is the run outcome status.
	Status OutcomeStatus `msgpack:"status"`
	// Message is the outcome description, if any.
	Message string `msgpack:"message,omitempty"`
	// Records is the number of record frames that preceded this one.
	Records int64 `msgpack:"records"`
	// Missing is the number of requested ids that were not found.
	Missing int `msgpack:"missing,omitempty"`
}

// NewRecordFrame builds a record frame for r.
func NewRecordFrame(runID string, seq int64, r Record) *RecordFrame {
	return &RecordFrame{
		Type:    RecordFrameType,
		Version: FrameVersion,
		RunID:   runID,
		Seq:     seq,
		ID:      r.ID,
		Index:   r.Index,
		Body:    r.Body,
	}
}

// Record converts the frame back to a record.
func (f *RecordFrame) Record() Record {
	return Record{ID: f.ID, Index: f.Index, Body: f.Body}
}
