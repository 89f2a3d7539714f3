// Package sink writes normalized records to an output stream.
//
// NDJSON writes one JSON document per line; Frames writes the
// length-prefixed msgpack frames of package ipc. Both implement
// policy.Sink and are driven through a policy.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/types"
)

// PrettyIndent is the indent of pretty-printed output.
const PrettyIndent = "    "

// NDJSON writes each record body followed by a newline.
// Every batch is flushed before WriteRecords returns, so a consumer sees
// records as they are harvested.
type NDJSON struct {
	w      *bufio.Writer
	pretty bool
	buf    bytes.Buffer
}

// NewNDJSON creates an NDJSON sink over w. With pretty, each document is
// indented and spans several lines.
func NewNDJSON(w io.Writer, pretty bool) *NDJSON {
	return &NDJSON{w: bufio.NewWriter(w), pretty: pretty}
}

// WriteRecords implements policy.Sink.
func (s *NDJSON) WriteRecords(_ context.Context, records []types.Record) error {
	for _, r := range records {
		body := r.Body
		if len(body) == 0 {
			body = types.EmptyBody
		}
		if s.pretty {
			s.buf.Reset()
			if err := json.Indent(&s.buf, body, "", PrettyIndent); err != nil {
				return fmt.Errorf("indent record %s: %w", r.ID, err)
			}
			body = s.buf.Bytes()
		}
		if _, err := s.w.Write(body); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes buffered output. The underlying writer is left open.
func (s *NDJSON) Close() error {
	return s.w.Flush()
}

// Verify NDJSON implements policy.Sink.
var _ policy.Sink = (*NDJSON)(nil)
