package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "es2json"

// PushJob is the Pushgateway job label for harvest runs.
const PushJob = "es2json_harvest"

// exported holds the prometheus mirror of a Snapshot.
type exported struct {
	runs        *prometheus.CounterVec
	docs        prometheus.Counter
	ids         *prometheus.CounterVec
	chunks      prometheus.Counter
	scrollPages prometheus.Counter
	storeCalls  *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	archive     *prometheus.CounterVec
}

func newExported(s Snapshot) *exported {
	labels := prometheus.Labels{"mode": s.Mode, "index": s.Index}
	return &exported{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Runs by terminal status",
			ConstLabels: labels,
		}, []string{"status"}),

		docs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "docs_emitted_total",
			Help:        "Records handed to the sink",
			ConstLabels: labels,
		}),

		ids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ids_total",
			Help:        "Resolved identifiers by result",
			ConstLabels: labels,
		}, []string{"result"}),

		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "chunks_total",
			Help:        "Completed resolution chunks",
			ConstLabels: labels,
		}),

		scrollPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "scroll_pages_total",
			Help:        "Pages fetched by the scan engine",
			ConstLabels: labels,
		}),

		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "store_calls_total",
			Help:        "Store round trips by operation",
			ConstLabels: labels,
		}, []string{"op"}),

		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "store_errors_total",
			Help:        "Failed store round trips by operation",
			ConstLabels: labels,
		}, []string{"op"}),

		archive: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "archive_writes_total",
			Help:        "Archive batch writes by result",
			ConstLabels: labels,
		}, []string{"result"}),
	}
}

// Export mirrors s into reg. Counters are registered fresh, so reg should be
// a private registry created per run.
func Export(reg prometheus.Registerer, s Snapshot) error {
	e := newExported(s)
	for _, c := range []prometheus.Collector{
		e.runs, e.docs, e.ids, e.chunks, e.scrollPages,
		e.storeCalls, e.storeErrors, e.archive,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	e.runs.WithLabelValues("started").Add(float64(s.RunsStarted))
	e.runs.WithLabelValues("completed").Add(float64(s.RunsCompleted))
	e.runs.WithLabelValues("failed").Add(float64(s.RunsFailed))
	e.runs.WithLabelValues("canceled").Add(float64(s.RunsCanceled))

	e.docs.Add(float64(s.DocsEmitted))
	e.ids.WithLabelValues("found").Add(float64(s.IDsFound))
	e.ids.WithLabelValues("missing").Add(float64(s.IDsMissing))
	e.chunks.Add(float64(s.Chunks))
	e.scrollPages.Add(float64(s.ScrollPages))

	for op, n := range s.StoreCalls {
		e.storeCalls.WithLabelValues(op).Add(float64(n))
	}
	for op, n := range s.StoreErrors {
		e.storeErrors.WithLabelValues(op).Add(float64(n))
	}

	e.archive.WithLabelValues("success").Add(float64(s.ArchiveWriteSuccess))
	e.archive.WithLabelValues("failure").Add(float64(s.ArchiveWriteFailure))
	return nil
}

// Push exports s into a private registry and pushes it to the Pushgateway at
// url, grouped by run id.
func Push(ctx context.Context, url string, s Snapshot) error {
	reg := prometheus.NewRegistry()
	if err := Export(reg, s); err != nil {
		return err
	}

	pusher := push.New(url, PushJob).Gatherer(reg)
	if s.RunID != "" {
		pusher = pusher.Grouping("run_id", s.RunID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
