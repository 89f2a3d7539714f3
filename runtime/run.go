// Package runtime orchestrates a single es2json harvest run.
//
// The orchestrator validates the retrieval configuration, drives the engine
// selected by the run mode, delivers records through the output and archive
// policies and classifies the result into an outcome and exit code.
package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/es2json/adapter"
	"github.com/justapithecus/es2json/lode"
	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// flushTimeout bounds the final best-effort flush of a run.
const flushTimeout = 30 * time.Second

// Summarizer terminates a record stream with the run outcome.
type Summarizer interface {
	Summarize(outcome types.RunOutcome, missing int) error
}

// RunConfig configures a single run.
type RunConfig struct {
	// Retrieval is the validated-on-entry retrieval configuration.
	Retrieval *types.RetrievalConfig
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Store is the document store the engines query.
	Store store.Store
	// Output is the stdout delivery policy. Closed by the run.
	// If nil, records are only archived.
	Output policy.Policy
	// Summarizer, if set, receives the outcome after the last record
	// (msgpack frame output).
	Summarizer Summarizer
	// Archive, if set, receives every record in buffered batches plus the
	// final run report. The caller closes it.
	Archive lode.Client
	// FileWriter, if set, stores the missing ids next to the archived run.
	FileWriter lode.FileWriter
	// StoragePath describes the archive location in notifications.
	StoragePath string
	// Notifier, if set, is told about the finished run.
	Notifier adapter.Adapter
	// MetricsPushURL, if set, is the Pushgateway the run metrics go to.
	MetricsPushURL string
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the run logger.
	Logger *log.Logger
	// Progress receives verbose processed/total lines.
	Progress io.Writer
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// ExitCode is the process exit code for Outcome.
	ExitCode int
	// Duration is the total run duration.
	Duration time.Duration
	// Emitted is the number of records delivered.
	Emitted int64
	// Found is the number of identifiers resolved to a document.
	Found int
	// Missing is the MissingSet.
	Missing *types.IDSet
	// Remaining holds identifiers never evaluated because the run stopped.
	Remaining []string
	// Chunks is the number of completed id chunks.
	Chunks int
	// PolicyStats is the combined delivery statistics.
	PolicyStats policy.Stats
	// Report is the structured report of the run.
	Report *RunReport
}

// tally accumulates what a harvest produced.
type tally struct {
	emitted   int64
	found     int
	missing   *types.IDSet
	remaining []string
	chunks    int
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if run metadata is invalid.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if config.RunMeta == nil {
		return nil, fmt.Errorf("invalid run metadata: missing")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Retrieval == nil {
		return nil, fmt.Errorf("missing retrieval config")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta, log.WithVerbose(config.Retrieval.Verbose))
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Validate the retrieval config (no store call on failure)
//  2. Run the engine for the mode, delivering records as they are produced
//  3. Flush delivery and close the output
//  4. Classify the outcome and build the report
//  5. Archive the report, notify and push metrics (best effort)
//
// The returned error is reserved for orchestration failures; run failures
// are reported through RunResult.Outcome.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	r.config.Collector.IncRunStarted()

	r.logger.Info("starting run", map[string]any{
		"address": r.config.Retrieval.Address,
		"chunk":   r.config.Retrieval.ChunkSize,
	})

	delivery, err := r.buildDelivery()
	if err != nil {
		return nil, err
	}

	t := &tally{missing: types.NewIDSet()}
	runErr := r.config.Retrieval.Validate()
	if runErr == nil {
		runErr = r.harvest(ctx, delivery, t)
	}

	// Always attempt a flush so every delivered record reaches its sink.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	flushErr := delivery.Flush(flushCtx)
	flushCancel()
	if flushErr != nil {
		r.logger.Warn("delivery flush failed", map[string]any{"error": flushErr.Error()})
		if runErr == nil {
			runErr = &SinkError{Err: fmt.Errorf("flush: %w", flushErr)}
		}
	}

	outcome := DetermineOutcome(runErr)

	if r.config.Summarizer != nil {
		if err := r.config.Summarizer.Summarize(*outcome, t.missing.Len()); err != nil {
			outcome = r.demote(outcome, "write summary", err)
		}
	}
	if err := delivery.Close(); err != nil {
		outcome = r.demote(outcome, "close output", err)
	}

	result := r.buildResult(outcome, t, delivery)
	r.logger.Info("run completed", map[string]any{
		"outcome":  outcome.Status,
		"emitted":  result.Emitted,
		"missing":  result.Missing.Len(),
		"duration": result.Duration.String(),
	})

	r.publish(ctx, result)
	return result, nil
}

// buildDelivery tees the output policy with a buffered archive policy.
func (r *RunOrchestrator) buildDelivery() (*policy.Tee, error) {
	if r.config.Archive == nil {
		return policy.NewTee(r.config.Output), nil
	}

	cfg := policy.DefaultBufferedConfig()
	cfg.Logger = r.logger
	archiveSink := lode.NewInstrumentedSink(lode.NewSink(r.config.Archive), r.config.Collector)
	archive, err := policy.NewBufferedPolicy(archiveSink, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive policy: %w", err)
	}
	return policy.NewTee(r.config.Output, archive), nil
}

// demote turns a late delivery failure into a sink failure unless the run
// already failed for another reason.
func (r *RunOrchestrator) demote(outcome *types.RunOutcome, step string, err error) *types.RunOutcome {
	r.logger.Error(step+" failed", map[string]any{"error": err.Error()})
	if outcome.Status != types.OutcomeSuccess {
		return outcome
	}
	return DetermineOutcome(&SinkError{Err: fmt.Errorf("%s: %w", step, err)})
}

// buildResult constructs the final run result and records run metrics.
func (r *RunOrchestrator) buildResult(outcome *types.RunOutcome, t *tally, delivery policy.Policy) *RunResult {
	result := &RunResult{
		RunMeta:     r.config.RunMeta,
		Outcome:     outcome,
		ExitCode:    ExitCode(outcome.Status),
		Duration:    time.Since(r.startTime),
		Emitted:     t.emitted,
		Found:       t.found,
		Missing:     t.missing,
		Remaining:   t.remaining,
		Chunks:      t.chunks,
		PolicyStats: delivery.Stats(),
	}

	switch outcome.Status {
	case types.OutcomeSuccess:
		r.config.Collector.IncRunCompleted()
	case types.OutcomeCanceled:
		r.config.Collector.IncRunCanceled()
	default:
		r.config.Collector.IncRunFailed()
	}

	result.Report = BuildRunReport(result, r.config.Collector.Snapshot(), result.ExitCode)
	return result
}
