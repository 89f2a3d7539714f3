package idfile

import (
	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/types"
)

// Journal keeps a consuming idfile in step with a running resolution.
//
// The file always holds every identifier that has not been confirmed found:
// Begin writes the full deduplicated pending set, every Checkpoint shrinks it
// to missing ∪ remaining, Finish leaves only the misses (or removes the file)
// and Abort records where a failed run stopped. A crash between two rewrites
// re-attempts the interrupted chunk on the next run, so records emitted in
// that chunk may be emitted again.
type Journal struct {
	path   string
	logger *log.Logger
}

// NewJournal creates a journal for the idfile at path.
func NewJournal(path string, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.Nop()
	}
	return &Journal{path: path, logger: logger}
}

// Path returns the journaled idfile path.
func (j *Journal) Path() string {
	return j.path
}

// Begin writes ahead the full pending set.
func (j *Journal) Begin(pending *types.IDSet) error {
	if err := Write(j.path, pending.Slice()); err != nil {
		return err
	}
	j.logger.Debug("idfile journal started", map[string]any{"pending": pending.Len()})
	return nil
}

// Checkpoint records a completed chunk. Its signature matches
// resolve.CheckpointFunc.
func (j *Journal) Checkpoint(remaining []string, missing *types.IDSet) error {
	return Write(j.path, outstanding(remaining, missing))
}

// Finish applies the consuming end-of-run policy.
func (j *Journal) Finish(missing *types.IDSet) error {
	return Persist(j.path, missing, true, j.logger)
}

// Abort records the state of a run that stopped early.
func (j *Journal) Abort(remaining []string, missing *types.IDSet) error {
	ids := outstanding(remaining, missing)
	if err := Write(j.path, ids); err != nil {
		return err
	}
	j.logger.Warn("idfile journal aborted", map[string]any{
		"remaining": len(remaining),
		"missing":   missing.Len(),
	})
	return nil
}

// outstanding lists misses first: they precede the pending ids in the
// original working-set order.
func outstanding(remaining []string, missing *types.IDSet) []string {
	return missing.Union(types.NewIDSet(remaining...)).Slice()
}
