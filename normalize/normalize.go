// Package normalize turns store hits into emitted records.
//
// Two shapes exist: the full shape carries the store metadata around the
// document field set, the headless shape is the field set alone.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// Options controls the record shape.
type Options struct {
	Headless      bool
	IncludeSource bool
	// Includes and Excludes are dotted field paths; each segment may use
	// path.Match wildcards. Includes are applied first.
	Includes []string
	Excludes []string
}

// Normalizer converts hits into records. It is stateless and safe for
// concurrent use.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Options returns the configured options.
func (n *Normalizer) Options() Options {
	return n.opts
}

// SourceFilter returns the store-side filter matching the options, so the
// store can trim documents before they cross the wire.
func (n *Normalizer) SourceFilter() store.SourceFilter {
	return store.SourceFilter{
		Disabled: !n.opts.IncludeSource,
		Includes: n.opts.Includes,
		Excludes: n.opts.Excludes,
	}
}

// fullRecord is the full output shape.
type fullRecord struct {
	Index  string          `json:"_index"`
	Type   string          `json:"_type,omitempty"`
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score,omitempty"`
	Source json.RawMessage `json:"_source"`
}

// Normalize encodes hit in the configured shape.
func (n *Normalizer) Normalize(hit store.Hit) (types.Record, error) {
	rec := types.Record{ID: hit.ID, Index: hit.Index}

	source := types.EmptyBody
	if n.opts.IncludeSource {
		filtered, err := n.filter(hit.Source)
		if err != nil {
			return types.Record{}, fmt.Errorf("normalize %s/%s: %w", hit.Index, hit.ID, err)
		}
		source = filtered
	}

	if n.opts.Headless {
		rec.Body = source
		return rec, nil
	}

	body, err := json.Marshal(fullRecord{
		Index:  hit.Index,
		Type:   hit.Type,
		ID:     hit.ID,
		Score:  hit.Score,
		Source: source,
	})
	if err != nil {
		return types.Record{}, fmt.Errorf("normalize %s/%s: %w", hit.Index, hit.ID, err)
	}
	rec.Body = body
	return rec, nil
}

// filter applies includes then excludes. A nil or empty source becomes {}.
func (n *Normalizer) filter(src json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return types.EmptyBody, nil
	}
	if len(n.opts.Includes) == 0 && len(n.opts.Excludes) == 0 {
		return compact(src)
	}

	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	if len(n.opts.Includes) > 0 {
		doc = include(doc, nil, splitPatterns(n.opts.Includes))
	}
	if len(n.opts.Excludes) > 0 {
		exclude(doc, nil, splitPatterns(n.opts.Excludes))
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	return out, nil
}

func compact(src json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, src); err != nil {
		return nil, fmt.Errorf("compact source: %w", err)
	}
	return buf.Bytes(), nil
}

func splitPatterns(patterns []string) [][]string {
	out := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.Split(p, "."))
	}
	return out
}

// matchState reports how a field path relates to a pattern set:
// full when some pattern matches the whole path, partial when some pattern
// could still match a descendant.
func matchState(fieldPath []string, patterns [][]string) (full, partial bool) {
	for _, p := range patterns {
		if len(p) < len(fieldPath) {
			continue
		}
		ok := true
		for i, seg := range fieldPath {
			matched, err := path.Match(p[i], seg)
			if err != nil || !matched {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if len(p) == len(fieldPath) {
			full = true
		} else {
			partial = true
		}
	}
	return full, partial
}

func include(doc map[string]any, prefix []string, patterns [][]string) map[string]any {
	out := make(map[string]any)
	for k, v := range doc {
		fieldPath := append(append([]string(nil), prefix...), k)
		full, partial := matchState(fieldPath, patterns)
		switch {
		case full:
			out[k] = v
		case partial:
			if kept, ok := includeValue(v, fieldPath, patterns); ok {
				out[k] = kept
			}
		}
	}
	return out
}

// includeValue filters the descendants of a partially matched field.
// Objects inside arrays are filtered element by element with the same path;
// scalars under a partial match are dropped.
func includeValue(v any, fieldPath []string, patterns [][]string) (any, bool) {
	switch child := v.(type) {
	case map[string]any:
		kept := include(child, fieldPath, patterns)
		return kept, len(kept) > 0
	case []any:
		kept := make([]any, 0, len(child))
		for _, elem := range child {
			if e, ok := includeValue(elem, fieldPath, patterns); ok {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) > 0
	default:
		return nil, false
	}
}

func exclude(doc map[string]any, prefix []string, patterns [][]string) {
	for k, v := range doc {
		fieldPath := append(append([]string(nil), prefix...), k)
		full, partial := matchState(fieldPath, patterns)
		if full {
			delete(doc, k)
			continue
		}
		if partial {
			excludeValue(v, fieldPath, patterns)
		}
	}
}

func excludeValue(v any, fieldPath []string, patterns [][]string) {
	switch child := v.(type) {
	case map[string]any:
		exclude(child, fieldPath, patterns)
	case []any:
		for _, elem := range child {
			excludeValue(elem, fieldPath, patterns)
		}
	}
}
