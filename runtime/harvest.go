package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/justapithecus/es2json/idfile"
	"github.com/justapithecus/es2json/normalize"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/resolve"
	"github.com/justapithecus/es2json/scan"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// harvest runs the engine selected by the run mode.
func (r *RunOrchestrator) harvest(ctx context.Context, delivery policy.Policy, t *tally) error {
	cfg := r.config.Retrieval
	norm := normalize.New(normalize.Options{
		Headless:      cfg.Headless,
		IncludeSource: cfg.IncludeSource,
		Includes:      cfg.Includes,
		Excludes:      cfg.Excludes,
	})

	emit := func(rec types.Record) error {
		if err := delivery.Ingest(ctx, rec); err != nil {
			return &SinkError{Err: err}
		}
		t.emitted++
		return nil
	}

	switch cfg.Mode {
	case types.ModeScan:
		return r.runScan(ctx, norm, emit)
	case types.ModeID:
		return r.runID(ctx, norm, emit, t)
	case types.ModeIDFile, types.ModeIDFileConsume:
		return r.runIDFile(ctx, norm, delivery, emit, t)
	default:
		return types.NewConfigError("mode", fmt.Sprintf("unknown mode %q", cfg.Mode))
	}
}

func (r *RunOrchestrator) target() store.Target {
	return store.Target{Index: r.config.Retrieval.Index, Type: r.config.Retrieval.Type}
}

// runScan drains a cursor or a bounded window.
func (r *RunOrchestrator) runScan(ctx context.Context, norm *normalize.Normalizer, emit resolve.EmitFunc) error {
	cfg := r.config.Retrieval
	sc := scan.New(r.config.Store, norm, scan.Config{
		Target:   r.target(),
		Query:    cfg.Query,
		PageSize: cfg.ChunkSize,
		Window:   cfg.Window,
		Verbose:  cfg.Verbose,
	},
		scan.WithLogger(r.logger),
		scan.WithCollector(r.config.Collector),
		scan.WithProgress(r.config.Progress),
	)
	defer sc.Close(ctx)

	for sc.Next(ctx) {
		if err := emit(sc.Record()); err != nil {
			return err
		}
		r.config.Collector.IncDocsEmitted()
	}
	return sc.Err()
}

// runID retrieves a single document. A miss is reported, not failed.
func (r *RunOrchestrator) runID(ctx context.Context, norm *normalize.Normalizer, emit resolve.EmitFunc, t *tally) error {
	id := r.config.Retrieval.ID

	r.config.Collector.IncStoreCall(string(store.OpGet))
	hit, found, err := r.config.Store.Get(ctx, store.GetRequest{
		Target: r.target(),
		ID:     id,
		Source: norm.SourceFilter(),
	})
	if err != nil {
		r.config.Collector.IncStoreError(string(store.OpGet))
		return fmt.Errorf("get %s: %w", id, err)
	}

	if !found {
		t.missing.Add(id)
		r.config.Collector.AddIDsMissing(1)
		r.logger.Warn("document not found", map[string]any{"id": id})
		return nil
	}

	rec, err := norm.Normalize(hit)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", id, err)
	}
	if err := emit(rec); err != nil {
		return err
	}
	t.found++
	r.config.Collector.AddIDsFound(1)
	r.config.Collector.IncDocsEmitted()
	return nil
}

// runIDFile resolves the identifiers of an idfile.
//
// Consuming runs journal the file: it is rewritten with the full pending set
// before the first store call and shrunk after every completed chunk, once
// the chunk's records have been flushed.
func (r *RunOrchestrator) runIDFile(ctx context.Context, norm *normalize.Normalizer, delivery policy.Policy, emit resolve.EmitFunc, t *tally) error {
	cfg := r.config.Retrieval
	consume := cfg.Mode == types.ModeIDFileConsume

	ids, err := idfile.Load(cfg.IDFile)
	switch {
	case err != nil && consume && errors.Is(err, fs.ErrNotExist):
		r.logger.Info("idfile already consumed", map[string]any{"path": cfg.IDFile})
		return nil
	case err != nil && errors.Is(err, fs.ErrNotExist):
		return &types.ConfigError{Field: "idfile", Msg: fmt.Sprintf("idfile %s does not exist", cfg.IDFile), Err: err}
	case err != nil:
		return &SinkError{Err: err}
	}

	opts := []resolve.Option{
		resolve.WithLogger(r.logger),
		resolve.WithCollector(r.config.Collector),
	}
	if cfg.Verbose {
		opts = append(opts, resolve.WithProgress(r.config.Progress))
	}

	var journal *idfile.Journal
	if consume {
		journal = idfile.NewJournal(cfg.IDFile, r.logger)
		if err := journal.Begin(ids); err != nil {
			return &SinkError{Err: err}
		}
		opts = append(opts, resolve.WithCheckpoint(func(remaining []string, missing *types.IDSet) error {
			if err := delivery.Flush(ctx); err != nil {
				return &SinkError{Err: err}
			}
			if err := journal.Checkpoint(remaining, missing); err != nil {
				return &SinkError{Err: err}
			}
			return nil
		}))
	}

	engine := resolve.New(r.config.Store, norm, opts...)
	sum, resErr := engine.Resolve(ctx, resolve.Request{
		Target:    r.target(),
		IDs:       ids,
		ChunkSize: cfg.ChunkSize,
		Query:     cfg.Query,
	}, emit)

	t.found = sum.Found
	t.missing = sum.Missing
	t.remaining = sum.Remaining
	t.chunks = sum.Chunks

	if resErr != nil {
		if journal != nil {
			if err := journal.Abort(sum.Remaining, sum.Missing); err != nil {
				r.logger.Error("idfile journal abort failed", map[string]any{"error": err.Error()})
				return errors.Join(resErr, &SinkError{Err: err})
			}
		}
		return resErr
	}

	if journal != nil {
		if err := journal.Finish(sum.Missing); err != nil {
			return &SinkError{Err: err}
		}
		return nil
	}
	return idfile.Persist(cfg.IDFile, sum.Missing, false, r.logger)
}
