package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/es2json/adapter"
	es2lode "github.com/justapithecus/es2json/lode"
	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/sink"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// harness wires a run against an in-memory store and a buffer stdout.
type harness struct {
	store  *store.MemoryStore
	out    *bytes.Buffer
	config *RunConfig
}

func docIDs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return out
}

func newHarness(t *testing.T, mode types.Mode, present ...string) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	st.CreateIndex("logs", "")
	for i, id := range present {
		color := "blue"
		if i%2 == 0 {
			color = "red"
		}
		if err := st.Put("logs", id, map[string]any{"name": id, "color": color}); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	meta := &types.RunMeta{
		RunID:     "run-001",
		Index:     "logs",
		Mode:      mode,
		StartedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	out := &bytes.Buffer{}
	return &harness{
		store: st,
		out:   out,
		config: &RunConfig{
			Retrieval: &types.RetrievalConfig{
				Address:       "http://127.0.0.1:9200",
				Index:         "logs",
				Timeout:       types.DefaultTimeout,
				ChunkSize:     types.DefaultChunkSize,
				IncludeSource: true,
				Mode:          mode,
			},
			RunMeta:   meta,
			Store:     st,
			Output:    policy.NewStrictPolicy(sink.NewNDJSON(out, false)),
			Collector: metrics.NewCollector(string(mode), "logs", "", meta.RunID),
			Logger:    log.NewLoggerWithWriter(meta, io.Discard),
		},
	}
}

func (h *harness) withIDFile(t *testing.T, ids ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte(strings.Join(ids, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write idfile: %v", err)
	}
	h.config.Retrieval.IDFile = path
	return path
}

func (h *harness) run(t *testing.T) *RunResult {
	t.Helper()
	return h.runCtx(t, t.Context())
}

func (h *harness) runCtx(t *testing.T, ctx context.Context) *RunResult {
	t.Helper()
	orch, err := NewRunOrchestrator(h.config)
	if err != nil {
		t.Fatalf("NewRunOrchestrator failed: %v", err)
	}
	result, err := orch.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return result
}

// emittedIDs parses the _id of every NDJSON line.
func (h *harness) emittedIDs(t *testing.T) []string {
	t.Helper()
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(h.out.Bytes()))
	for sc.Scan() {
		var doc struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			t.Fatalf("output line %q is not JSON: %v", sc.Text(), err)
		}
		ids = append(ids, doc.ID)
	}
	return ids
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Fields(string(data))
}

func TestNewRunOrchestrator_RejectsInvalidMeta(t *testing.T) {
	h := newHarness(t, types.ModeScan)
	h.config.RunMeta = &types.RunMeta{Mode: types.ModeScan}
	if _, err := NewRunOrchestrator(h.config); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

// Scenario A: every id is found; the consumed idfile is deleted.
func TestExecute_ConsumeAllFound(t *testing.T) {
	ids := docIDs("doc", 10)
	h := newHarness(t, types.ModeIDFileConsume, ids...)
	path := h.withIDFile(t, ids...)

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v, want success", result.Outcome)
	}
	if result.Emitted != 10 || result.Found != 10 {
		t.Errorf("Emitted/Found = %d/%d, want 10/10", result.Emitted, result.Found)
	}
	if got := h.emittedIDs(t); !slices.Equal(got, ids) {
		t.Errorf("emitted %v, want %v", got, ids)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("idfile should be deleted, stat err = %v", err)
	}
}

// A consuming rerun after total success makes no store call.
func TestExecute_ConsumeRerunIsIdempotent(t *testing.T) {
	ids := docIDs("doc", 5)
	h := newHarness(t, types.ModeIDFileConsume, ids...)
	h.withIDFile(t, ids...)

	if first := h.run(t); first.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("first run outcome = %+v", first.Outcome)
	}
	calls := h.store.TotalCalls()
	h.out.Reset()
	h.config.Output = policy.NewStrictPolicy(sink.NewNDJSON(h.out, false))

	second := h.run(t)

	if second.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("second run outcome = %+v", second.Outcome)
	}
	if got := h.store.TotalCalls(); got != calls {
		t.Errorf("second run made %d store calls", got-calls)
	}
	if h.out.Len() != 0 {
		t.Errorf("second run emitted %q", h.out.String())
	}
}

// Scenario B: 200 ids, 100 present; the file keeps exactly the misses.
func TestExecute_ConsumeHalfMissing(t *testing.T) {
	ids := docIDs("doc", 200)
	var present, absent []string
	for i, id := range ids {
		if i%2 == 0 {
			present = append(present, id)
		} else {
			absent = append(absent, id)
		}
	}
	h := newHarness(t, types.ModeIDFileConsume, present...)
	h.config.Retrieval.ChunkSize = 30
	path := h.withIDFile(t, ids...)

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v, want success (misses are not failures)", result.Outcome)
	}
	if result.ExitCode != ExitCodeSuccess {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Found != 100 || result.Missing.Len() != 100 {
		t.Errorf("Found/Missing = %d/%d, want 100/100", result.Found, result.Missing.Len())
	}
	if got := readLines(t, path); !slices.Equal(got, absent) {
		t.Errorf("idfile holds %d ids, want the %d missing ids", len(got), len(absent))
	}
}

// Scenario C: a contradictory config is rejected before any store call.
func TestExecute_HeadlessWithoutSource(t *testing.T) {
	h := newHarness(t, types.ModeScan, docIDs("doc", 3)...)
	h.config.Retrieval.Headless = true
	h.config.Retrieval.IncludeSource = false

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeConfigError {
		t.Fatalf("Outcome = %+v, want config_error", result.Outcome)
	}
	if result.ExitCode != ExitCodeConfig {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, ExitCodeConfig)
	}
	if result.Outcome.Message != types.HeadlessWithoutSourceMessage {
		t.Errorf("Message = %q", result.Outcome.Message)
	}
	if n := h.store.TotalCalls(); n != 0 {
		t.Errorf("store calls = %d, want 0", n)
	}
	if h.out.Len() != 0 {
		t.Errorf("unexpected output %q", h.out.String())
	}
}

// Scenario D: with a filter only matching ids are found.
func TestExecute_FilteredIDFile(t *testing.T) {
	ids := docIDs("doc", 6)
	h := newHarness(t, types.ModeIDFile, ids...)
	h.config.Retrieval.Query = json.RawMessage(`{"query":{"term":{"color":"red"}}}`)
	path := h.withIDFile(t, ids...)

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}
	want := []string{"doc-000", "doc-002", "doc-004"}
	if got := h.emittedIDs(t); !slices.Equal(got, want) {
		t.Errorf("emitted %v, want %v", got, want)
	}
	if got := result.Missing.Slice(); !slices.Equal(got, []string{"doc-001", "doc-003", "doc-005"}) {
		t.Errorf("missing %v", got)
	}
	if got := readLines(t, path); len(got) != 6 {
		t.Errorf("non-consuming run modified the idfile: %v", got)
	}
}

// A failure in chunk k leaves chunk k, later ids and earlier misses in the file.
func TestExecute_ConsumeCrashBoundary(t *testing.T) {
	ids := docIDs("doc", 10)
	var present []string
	for _, id := range ids {
		if id != "doc-001" && id != "doc-004" {
			present = append(present, id)
		}
	}
	h := newHarness(t, types.ModeIDFileConsume, present...)
	h.config.Retrieval.ChunkSize = 3
	path := h.withIDFile(t, ids...)
	h.store.FailAfter(store.OpMultiGet, 2,
		store.NewError(store.ErrUnavailable, store.OpMultiGet, "logs", 503, errors.New("node left")))

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeStoreFailure {
		t.Fatalf("Outcome = %+v, want store_failure", result.Outcome)
	}
	if result.ExitCode != ExitCodeFailure {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	want := []string{"doc-001", "doc-004", "doc-006", "doc-007", "doc-008", "doc-009"}
	if got := readLines(t, path); !slices.Equal(got, want) {
		t.Errorf("idfile = %v, want %v", got, want)
	}
	if got := h.emittedIDs(t); len(got) != 4 {
		t.Errorf("emitted %v, want the 4 found ids of the first two chunks", got)
	}
}

func TestExecute_NonConsumingMissingFileIsConfigError(t *testing.T) {
	h := newHarness(t, types.ModeIDFile)
	h.config.Retrieval.IDFile = filepath.Join(t.TempDir(), "absent.txt")

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeConfigError {
		t.Fatalf("Outcome = %+v, want config_error", result.Outcome)
	}
}

func TestExecute_ScanWindow(t *testing.T) {
	ids := docIDs("doc", 20)
	h := newHarness(t, types.ModeScan, ids...)
	h.config.Retrieval.Window = &types.Window{From: 5, Size: 3}

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}
	if got := h.emittedIDs(t); !slices.Equal(got, ids[5:8]) {
		t.Errorf("emitted %v, want %v", got, ids[5:8])
	}
	if h.store.Calls(store.OpScroll) != 0 {
		t.Error("a bounded window must not open a cursor")
	}
}

func TestExecute_ScanAllPages(t *testing.T) {
	ids := docIDs("doc", 25)
	h := newHarness(t, types.ModeScan, ids...)
	h.config.Retrieval.ChunkSize = 10
	var progress bytes.Buffer
	h.config.Retrieval.Verbose = true
	h.config.Progress = &progress

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}
	if result.Emitted != 25 {
		t.Errorf("Emitted = %d, want 25", result.Emitted)
	}
	if h.store.OpenScrolls() != 0 {
		t.Error("scroll context left open")
	}
	if !strings.Contains(progress.String(), "25/25") {
		t.Errorf("progress = %q, want a 25/25 line", progress.String())
	}
	if snap := h.config.Collector.Snapshot(); snap.DocsEmitted != 25 || snap.RunsCompleted != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestExecute_ScanIndexNotFound(t *testing.T) {
	h := newHarness(t, types.ModeScan)
	h.config.Retrieval.Index = "nope"

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeIndexNotFound {
		t.Fatalf("Outcome = %+v, want index_not_found", result.Outcome)
	}
	if result.ExitCode != ExitCodeIndexNotFound {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestExecute_SingleID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		headless bool
		wantOut  string
		missing  int
	}{
		{"found", "doc-001", false, `{"_index":"logs","_id":"doc-001","_source":{"color":"blue","name":"doc-001"}}`, 0},
		{"headless", "doc-001", true, `{"color":"blue","name":"doc-001"}`, 0},
		{"miss", "doc-999", false, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, types.ModeID, docIDs("doc", 3)...)
			h.config.Retrieval.ID = tt.id
			h.config.Retrieval.Headless = tt.headless

			result := h.run(t)

			if result.Outcome.Status != types.OutcomeSuccess {
				t.Fatalf("Outcome = %+v", result.Outcome)
			}
			if got := strings.TrimSpace(h.out.String()); got != tt.wantOut {
				t.Errorf("output = %s, want %s", got, tt.wantOut)
			}
			if result.Missing.Len() != tt.missing {
				t.Errorf("missing = %d, want %d", result.Missing.Len(), tt.missing)
			}
		})
	}
}

func TestExecute_Canceled(t *testing.T) {
	ids := docIDs("doc", 9)
	h := newHarness(t, types.ModeIDFileConsume, ids...)
	h.config.Retrieval.ChunkSize = 3
	path := h.withIDFile(t, ids...)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result := h.runCtx(t, ctx)

	if result.Outcome.Status != types.OutcomeCanceled {
		t.Fatalf("Outcome = %+v, want canceled", result.Outcome)
	}
	if result.ExitCode != ExitCodeCanceled {
		t.Errorf("ExitCode = %d, want 4", result.ExitCode)
	}
	if got := readLines(t, path); !slices.Equal(got, ids) {
		t.Errorf("aborted journal = %v, want every id pending", got)
	}
}

type brokenSink struct{}

func (brokenSink) WriteRecords(context.Context, []types.Record) error {
	return errors.New("broken pipe")
}

func (brokenSink) Close() error { return nil }

func TestExecute_SinkFailure(t *testing.T) {
	h := newHarness(t, types.ModeScan, docIDs("doc", 3)...)
	h.config.Output = policy.NewStrictPolicy(brokenSink{})

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSinkFailure {
		t.Fatalf("Outcome = %+v, want sink_failure", result.Outcome)
	}
	if result.ExitCode != ExitCodeFailure {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
}

func TestExecute_ArchivesRecordsReportAndMissingIDs(t *testing.T) {
	ids := docIDs("doc", 6)
	h := newHarness(t, types.ModeIDFile, ids[:4]...)
	h.withIDFile(t, ids...)

	mem := lode.NewMemory()
	factory := func() (lode.Store, error) { return mem, nil }
	client, err := es2lode.NewLodeClientWithFactory(es2lode.ConfigFor(h.config.RunMeta), factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	defer func() { _ = client.Close() }()
	h.config.Archive = client
	h.config.FileWriter = client

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}
	if client.Written() != 4 {
		t.Errorf("archived %d documents, want 4", client.Written())
	}

	ds, err := es2lode.NewReadDataset(es2lode.DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	report, err := es2lode.QueryLatestReport(t.Context(), ds, "run-001", "")
	if err != nil {
		t.Fatalf("QueryLatestReport failed: %v", err)
	}
	if report["outcome"] != "success" || report["mode"] != "idfile" {
		t.Errorf("archived report = %v", report)
	}

	sidecar := "datasets/es2json/partitions/index=logs/day=2026-10-19/run_id=run-001/files/" + MissingIDsFile
	rc, err := mem.Get(t.Context(), sidecar)
	if err != nil {
		t.Fatalf("missing ids sidecar not written: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if string(data) != "doc-004\ndoc-005\n" {
		t.Errorf("sidecar = %q", data)
	}

	snap := h.config.Collector.Snapshot()
	if snap.ArchiveWriteSuccess < 2 {
		t.Errorf("ArchiveWriteSuccess = %d, want the batch and the report", snap.ArchiveWriteSuccess)
	}
}

type recordingNotifier struct {
	events []*adapter.HarvestCompletedEvent
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, e *adapter.HarvestCompletedEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

func TestExecute_Notifies(t *testing.T) {
	h := newHarness(t, types.ModeScan, docIDs("doc", 4)...)
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	h.config.Notifier = notifier
	h.config.StoragePath = "file:///archive"

	result := h.run(t)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("a failed notification must not fail the run: %+v", result.Outcome)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("events = %d, want 1", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.EventType != adapter.EventType || ev.RunID != "run-001" || ev.Emitted != 4 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Day != "2026-10-19" || ev.StoragePath != "file:///archive" || ev.Mode != "scan" {
		t.Errorf("event = %+v", ev)
	}
}

func TestExecute_FrameOutputEndsWithSummary(t *testing.T) {
	ids := docIDs("doc", 3)
	h := newHarness(t, types.ModeIDFile, ids[:2]...)
	h.withIDFile(t, ids...)
	frames := sink.NewFrames(h.out, "run-001")
	h.config.Output = policy.NewStrictPolicy(frames)
	h.config.Summarizer = frames

	result := h.run(t)
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}

	var replayed []string
	summary, err := sink.Replay(bytes.NewReader(h.out.Bytes()), func(r types.Record) error {
		replayed = append(replayed, r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if !slices.Equal(replayed, ids[:2]) {
		t.Errorf("replayed %v", replayed)
	}
	if summary.Status != types.OutcomeSuccess || summary.Records != 2 || summary.Missing != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestExecute_MissingIDsSidecar(t *testing.T) {
	tests := []struct {
		name    string
		present int
		want    []es2lode.StubFileRecord
	}{
		{name: "all found writes nothing", present: 3},
		{
			name:    "misses are written once",
			present: 1,
			want: []es2lode.StubFileRecord{
				{Filename: MissingIDsFile, ContentType: "text/plain", Data: []byte("doc-001\ndoc-002\n")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := docIDs("doc", 3)
			h := newHarness(t, types.ModeIDFile, ids[:tt.present]...)
			h.withIDFile(t, ids...)
			files := es2lode.NewStubFileWriter()
			h.config.FileWriter = files

			result := h.run(t)

			if result.Outcome.Status != types.OutcomeSuccess {
				t.Fatalf("Outcome = %+v", result.Outcome)
			}
			if len(files.Files) != len(tt.want) {
				t.Fatalf("sidecar writes = %d, want %d", len(files.Files), len(tt.want))
			}
			for i, w := range tt.want {
				got := files.Files[i]
				if got.Filename != w.Filename || got.ContentType != w.ContentType || !bytes.Equal(got.Data, w.Data) {
					t.Errorf("sidecar[%d] = %+v, want %+v", i, got, w)
				}
			}
		})
	}
}
