package sink

import (
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/es2json/ipc"
	"github.com/justapithecus/es2json/types"
)

// ErrNoSummary is returned by Replay when the stream ends without a run
// summary frame, which means the producing run was cut short.
var ErrNoSummary = errors.New("frame stream ended without a run summary")

// Replay decodes a frame stream and hands every record to emit in order.
// It returns the run summary that terminated the stream.
func Replay(r io.Reader, emit func(types.Record) error) (*types.RunSummaryFrame, error) {
	dec := ipc.NewFrameDecoder(r)
	var summary *types.RunSummaryFrame
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, err
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			return summary, err
		}
		switch f := frame.(type) {
		case *types.RecordFrame:
			if summary != nil {
				return summary, fmt.Errorf("record frame %d after run summary", f.Seq)
			}
			if err := emit(f.Record()); err != nil {
				return summary, err
			}
		case *types.RunSummaryFrame:
			summary = f
		}
	}
	if summary == nil {
		return nil, ErrNoSummary
	}
	return summary, nil
}
