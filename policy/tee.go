package policy

import (
	"context"
	"errors"

	"github.com/justapithecus/es2json/types"
)

// Tee fans each record out to several policies in order.
// The first failing policy aborts the ingest; later policies do not see
// the record.
type Tee struct {
	policies []Policy
}

// NewTee creates a tee over the given policies. Nil entries are skipped.
func NewTee(policies ...Policy) *Tee {
	t := &Tee{}
	for _, p := range policies {
		if p != nil {
			t.policies = append(t.policies, p)
		}
	}
	return t
}

// Ingest hands the record to every policy.
func (t *Tee) Ingest(ctx context.Context, rec types.Record) error {
	for _, p := range t.policies {
		if err := p.Ingest(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every policy and joins the failures.
func (t *Tee) Flush(ctx context.Context) error {
	var errs []error
	for _, p := range t.policies {
		errs = append(errs, p.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close closes every policy and joins the failures.
func (t *Tee) Close() error {
	var errs []error
	for _, p := range t.policies {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Stats sums the stats of every policy.
func (t *Tee) Stats() Stats {
	var s Stats
	for _, p := range t.policies {
		ps := p.Stats()
		s.TotalRecords += ps.TotalRecords
		s.RecordsPersisted += ps.RecordsPersisted
		s.BufferSize += ps.BufferSize
		s.FlushCount += ps.FlushCount
		s.Errors += ps.Errors
	}
	return s
}
