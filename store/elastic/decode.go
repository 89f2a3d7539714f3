package elastic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/es2json/store"
)

// hitDoc is one document as returned by get, mget and search.
type hitDoc struct {
	Index  string          `json:"_index"`
	Type   string          `json:"_type"`
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
	Found  *bool           `json:"found"`
	Error  json.RawMessage `json:"error"`
}

func (d hitDoc) hit(withScore bool) store.Hit {
	h := store.Hit{Index: d.Index, Type: d.Type, ID: d.ID, Source: d.Source}
	if withScore {
		h.Score = d.Score
	}
	return h
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total json.RawMessage `json:"total"`
		Hits  []hitDoc        `json:"hits"`
	} `json:"hits"`
}

type mgetResponse struct {
	Docs []hitDoc `json:"docs"`
}

// errorBody is the error envelope. "error" is an object on modern servers
// and a plain string on some older ones.
type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

type errorDetail struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseTotal accepts both `"total": 5` and `"total": {"value": 5}`.
func parseTotal(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '{' {
		var obj struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, fmt.Errorf("decode hits.total: %w", err)
		}
		return obj.Value, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode hits.total: %w", err)
	}
	return n, nil
}

// parseErrorDetail extracts the error type and reason from an "error" value.
func parseErrorDetail(raw json.RawMessage) errorDetail {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errorDetail{}
	}
	if raw[0] == '"' {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return errorDetail{Reason: msg}
	}
	var d errorDetail
	_ = json.Unmarshal(raw, &d)
	return d
}

// statusError classifies an error response, reading the body for the error type.
func statusError(op store.Op, index string, status int, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	d := parseErrorDetail(eb.Error)

	var cause error
	switch {
	case d.Reason != "" && d.Type != "":
		cause = fmt.Errorf("%s: %s", d.Type, d.Reason)
	case d.Reason != "":
		cause = errors.New(d.Reason)
	case len(data) > 0:
		cause = errors.New(string(bytes.TrimSpace(data)))
	}
	return store.ClassifyStatus(op, index, status, d.Type, cause)
}

// slotError classifies a per-document mget failure.
func slotError(index string, raw json.RawMessage) error {
	d := parseErrorDetail(raw)
	var cause error
	if d.Reason != "" {
		cause = errors.New(d.Reason)
	}
	// The slot carries no HTTP status; unknown types classify as rejected.
	return store.ClassifyStatus(store.OpMultiGet, index, 0, d.Type, cause)
}
