// Package idfile loads identifier files into working sets and persists the
// outcome of a resolution back to them.
//
// An idfile is UTF-8 text with one identifier per line. Trailing whitespace
// is insignificant, blank lines are skipped and duplicates collapse to their
// first occurrence.
package idfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/justapithecus/es2json/iox"
	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/types"
)

// filePerm is used when an idfile is rewritten.
const filePerm = 0o644

// maxLineSize bounds a single identifier line.
const maxLineSize = 1 << 20

// Load reads the idfile at path.
func Load(path string) (*types.IDSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open idfile: %w", err)
	}
	defer iox.DiscardClose(f)

	ids, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read idfile %s: %w", path, err)
	}
	return ids, nil
}

// Read parses identifiers from r.
func Read(r io.Reader) (*types.IDSet, error) {
	ids := types.NewIDSet()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		id := strings.TrimRight(sc.Text(), " \t\r\n\v\f")
		if id == "" {
			continue
		}
		ids.Add(id)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// FromSlice builds a working set from in-memory identifiers, applying the
// same trimming and deduplication as Read.
func FromSlice(ids []string) *types.IDSet {
	out := types.NewIDSet()
	for _, id := range ids {
		id = strings.TrimRight(id, " \t\r\n\v\f")
		if id != "" {
			out.Add(id)
		}
	}
	return out
}

// Open dispatches on the source kind: a path, a reader or a string sequence.
func Open(src any) (*types.IDSet, error) {
	switch v := src.(type) {
	case string:
		return Load(v)
	case io.Reader:
		return Read(v)
	case []string:
		return FromSlice(v), nil
	case *types.IDSet:
		if v == nil {
			return types.NewIDSet(), nil
		}
		return types.NewIDSet(v.Slice()...), nil
	default:
		return nil, types.NewConfigError("idfile", fmt.Sprintf("unsupported idfile source %T", src))
	}
}

// Write replaces the file at path with ids, one per line. The replacement is
// atomic: readers see either the old or the new content.
func Write(path string, ids []string) error {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := iox.WriteFileAtomic(path, []byte(b.String()), filePerm); err != nil {
		return fmt.Errorf("rewrite idfile: %w", err)
	}
	return nil
}

// Persist applies the end-of-run policy.
//
// Non-consuming runs never touch the file and report each missing identifier
// at warn level. Consuming runs delete the file when nothing is missing and
// otherwise replace it with exactly the missing identifiers.
func Persist(path string, missing *types.IDSet, consume bool, logger *log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}

	if !consume {
		for _, id := range missing.Slice() {
			logger.Warn("document not found", map[string]any{"id": id})
		}
		return nil
	}

	if missing.Len() == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove consumed idfile: %w", err)
		}
		logger.Info("idfile fully consumed", map[string]any{"path": path})
		return nil
	}

	if err := Write(path, missing.Slice()); err != nil {
		return err
	}
	logger.Info("idfile rewritten with missing ids", map[string]any{
		"path":    path,
		"missing": missing.Len(),
	})
	return nil
}
