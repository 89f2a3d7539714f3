package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/justapithecus/es2json/ipc"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/types"
)

// Frames writes records as msgpack record frames and ends the stream with
// a run summary frame.
type Frames struct {
	mu    sync.Mutex
	w     *bufio.Writer
	enc   *ipc.FrameEncoder
	runID string
	seq   int64
	done  bool
}

// NewFrames creates a frame sink over w stamping every frame with runID.
func NewFrames(w io.Writer, runID string) *Frames {
	bw := bufio.NewWriter(w)
	return &Frames{w: bw, enc: ipc.NewFrameEncoder(bw), runID: runID}
}

// WriteRecords implements policy.Sink.
func (s *Frames) WriteRecords(_ context.Context, records []types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return fmt.Errorf("frame stream for run %s already summarized", s.runID)
	}
	for _, r := range records {
		if err := s.enc.WriteFrame(types.NewRecordFrame(s.runID, s.seq+1, r)); err != nil {
			return fmt.Errorf("write record frame %s: %w", r.ID, err)
		}
		s.seq++
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Summarize writes the terminal run summary frame. Records written after
// it are rejected.
func (s *Frames) Summarize(outcome types.RunOutcome, missing int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true
	frame := &types.RunSummaryFrame{
		Type:    types.RunSummaryFrameType,
		Version: types.FrameVersion,
		RunID:   s.runID,
		Status:  outcome.Status,
		Message: outcome.Message,
		Records: s.seq,
		Missing: missing,
	}
	if err := s.enc.WriteFrame(frame); err != nil {
		return fmt.Errorf("write run summary frame: %w", err)
	}
	return s.w.Flush()
}

// Close flushes buffered output. The underlying writer is left open.
func (s *Frames) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Verify Frames implements policy.Sink.
var _ policy.Sink = (*Frames)(nil)
