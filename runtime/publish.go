package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/justapithecus/es2json/adapter"
	"github.com/justapithecus/es2json/lode"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/types"
)

// MissingIDsFile is the sidecar file holding every missing id of a run.
const MissingIDsFile = "missing_ids.txt"

// publishTimeout bounds each post-run publication step.
const publishTimeout = 30 * time.Second

// publish archives the report, notifies and pushes metrics.
// Every step is best effort: failures are logged and never change the outcome.
func (r *RunOrchestrator) publish(ctx context.Context, result *RunResult) {
	// Publication runs even when the run was canceled.
	ctx = context.WithoutCancel(ctx)

	r.archiveReport(ctx, result)
	r.notify(ctx, result)
	r.pushMetrics(ctx)
}

func (r *RunOrchestrator) archiveReport(ctx context.Context, result *RunResult) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if r.config.FileWriter != nil && result.Missing.Len() > 0 {
		data := strings.Join(result.Missing.Slice(), "\n") + "\n"
		if err := r.config.FileWriter.PutFile(ctx, MissingIDsFile, "text/plain", []byte(data)); err != nil {
			r.logger.Warn("failed to archive missing ids", map[string]any{"error": err.Error()})
		}
	}

	if r.config.Archive == nil {
		return
	}
	if err := r.config.Archive.WriteReport(ctx, result.Report, time.Now()); err != nil {
		r.config.Collector.IncArchiveWriteFailure()
		r.logger.Warn("failed to archive run report", map[string]any{"error": err.Error()})
		return
	}
	r.config.Collector.IncArchiveWriteSuccess()
}

func (r *RunOrchestrator) notify(ctx context.Context, result *RunResult) {
	if r.config.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.config.Notifier.Publish(ctx, BuildHarvestEvent(result, r.config.StoragePath)); err != nil {
		r.logger.Warn("harvest notification failed", map[string]any{"error": err.Error()})
		return
	}
	r.logger.Debug("harvest notification sent", map[string]any{"outcome": result.Outcome.Status})
}

func (r *RunOrchestrator) pushMetrics(ctx context.Context) {
	if r.config.MetricsPushURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := metrics.Push(ctx, r.config.MetricsPushURL, r.config.Collector.Snapshot()); err != nil {
		r.logger.Warn("metrics push failed", map[string]any{"error": err.Error()})
	}
}

// BuildHarvestEvent composes the completion notice of a run.
func BuildHarvestEvent(result *RunResult, storagePath string) *adapter.HarvestCompletedEvent {
	return &adapter.HarvestCompletedEvent{
		Version:     types.Version,
		EventType:   adapter.EventType,
		RunID:       result.RunMeta.RunID,
		Index:       result.RunMeta.Index,
		Mode:        string(result.RunMeta.Mode),
		Day:         lode.DeriveDay(result.RunMeta.StartedAt),
		Outcome:     string(result.Outcome.Status),
		ExitCode:    result.ExitCode,
		StoragePath: storagePath,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Emitted:     result.Emitted,
		Missing:     result.Missing.Len(),
		Remaining:   len(result.Remaining),
		DurationMs:  result.Duration.Milliseconds(),
	}
}
