package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Retrieval defaults shared by the CLI and the engines.
const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 9200
	DefaultChunkSize = 1000
	DefaultTimeout   = 10 * time.Second
	DefaultKeepAlive = 12 * time.Hour
)

// HeadlessWithoutSourceMessage is the diagnostic printed when -headless is
// combined with a disabled source: there would be nothing left to print.
const HeadlessWithoutSourceMessage = "ERROR! do not use -headless and -source False at the same Time!"

// Mode selects which engine serves a run. Exactly one is active per run.
type Mode string

const (
	// ModeScan dumps an index (optionally restricted by a query) via cursor or window.
	ModeScan Mode = "scan"
	// ModeID retrieves a single document.
	ModeID Mode = "id"
	// ModeIDFile resolves ids from a file without touching the file.
	ModeIDFile Mode = "idfile"
	// ModeIDFileConsume resolves ids from a file and shrinks it to the misses.
	ModeIDFileConsume Mode = "idfile_consume"
)

// ResolveMode picks the run mode from the mutually exclusive selectors.
// An empty selector set means a plain scan.
func ResolveMode(id, idfile, idfileConsume string) (Mode, error) {
	var modes []Mode
	if id != "" {
		modes = append(modes, ModeID)
	}
	if idfile != "" {
		modes = append(modes, ModeIDFile)
	}
	if idfileConsume != "" {
		modes = append(modes, ModeIDFileConsume)
	}

	switch len(modes) {
	case 0:
		return ModeScan, nil
	case 1:
		return modes[0], nil
	default:
		return "", NewConfigError("mode", fmt.Sprintf("only one of -id, -idfile, -idfile_consume may be used, got %v", modes))
	}
}

// Window is a bounded result window (offset + length).
type Window struct {
	From int `json:"from" yaml:"from"`
	Size int `json:"size" yaml:"size"`
}

// ParseWindow parses "N" (first N hits) or "N:M" (hits N up to but excluding M).
func ParseWindow(s string) (*Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	start, end, isSlice := strings.Cut(s, ":")
	if !isSlice {
		n, err := strconv.Atoi(start)
		if err != nil {
			return nil, &ConfigError{Field: "size", Msg: fmt.Sprintf("invalid size %q", s), Err: err}
		}
		if n < 0 {
			return nil, NewConfigError("size", fmt.Sprintf("size must be >= 0, got %d", n))
		}
		return &Window{From: 0, Size: n}, nil
	}

	from, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return nil, &ConfigError{Field: "size", Msg: fmt.Sprintf("invalid slice start in %q", s), Err: err}
	}
	to, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return nil, &ConfigError{Field: "size", Msg: fmt.Sprintf("invalid slice end in %q", s), Err: err}
	}
	if from < 0 || to < from {
		return nil, NewConfigError("size", fmt.Sprintf("invalid slice %q: need 0 <= start <= end", s))
	}
	return &Window{From: from, Size: to - from}, nil
}

// RetrievalConfig is the immutable per-run configuration handed to the engines.
type RetrievalConfig struct {
	// Address is the store base URL, e.g. http://127.0.0.1:9200.
	Address string
	// Index is the target index (or alias/pattern for scans).
	Index string
	// Type is the optional legacy mapping type.
	Type string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// ChunkSize bounds both scroll pages and multi-get chunks.
	ChunkSize int
	// Verbose enables processed/total progress reporting.
	Verbose bool
	// Headless strips store metadata from emitted records.
	Headless bool
	// IncludeSource controls whether the document field set is returned.
	IncludeSource bool
	// Includes and Excludes restrict the returned field set.
	Includes []string
	Excludes []string
	// Query is the optional search body.
	Query json.RawMessage
	// Window bounds a scan to a from/size window instead of a cursor.
	Window *Window

	// Mode selects the engine; ID and IDFile carry its argument.
	Mode   Mode
	ID     string
	IDFile string
}

// Validate rejects contradictory or incomplete settings before any store call.
func (c *RetrievalConfig) Validate() error {
	if c.Headless && !c.IncludeSource {
		return NewConfigError("headless", HeadlessWithoutSourceMessage)
	}
	if c.Address == "" {
		return NewConfigError("address", "store address must be non-empty")
	}
	if c.ChunkSize < 1 {
		return NewConfigError("chunksize", fmt.Sprintf("chunksize must be >= 1, got %d", c.ChunkSize))
	}
	if c.Timeout <= 0 {
		return NewConfigError("timeout", fmt.Sprintf("timeout must be > 0, got %s", c.Timeout))
	}
	if len(c.Query) > 0 {
		var body map[string]any
		if err := json.Unmarshal(c.Query, &body); err != nil {
			return &ConfigError{Field: "body", Msg: "search body must be a JSON object", Err: err}
		}
	}

	switch c.Mode {
	case ModeScan:
	case ModeID:
		if c.ID == "" {
			return NewConfigError("id", "id mode requires a document id")
		}
	case ModeIDFile, ModeIDFileConsume:
		if c.IDFile == "" {
			return NewConfigError("idfile", fmt.Sprintf("%s mode requires an idfile path", c.Mode))
		}
	default:
		return NewConfigError("mode", fmt.Sprintf("unknown mode %q", c.Mode))
	}

	if c.Mode != ModeScan && c.Index == "" {
		return NewConfigError("index", fmt.Sprintf("%s mode requires an index", c.Mode))
	}
	if c.Window != nil && c.Mode != ModeScan {
		return NewConfigError("size", "-size only applies to scans")
	}
	return nil
}
