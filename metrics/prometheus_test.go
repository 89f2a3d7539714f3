package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func sampleSnapshot() Snapshot {
	c := NewCollector("idfile_consume", "logs", "fs", "run-7")
	c.IncRunStarted()
	c.IncRunCompleted()
	c.AddIDsFound(100)
	c.AddIDsMissing(100)
	c.IncChunks()
	c.IncChunks()
	c.IncStoreCall("mget")
	c.IncStoreCall("mget")
	return c.Snapshot()
}

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "mode" || lp.GetName() == "index" {
					continue
				}
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out
}

func TestExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Export(reg, sampleSnapshot()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	got := gathered(t, reg)
	want := map[string]float64{
		"es2json_runs_total{status=completed}":         1,
		"es2json_ids_total{result=found}":              100,
		"es2json_ids_total{result=missing}":            100,
		"es2json_chunks_total":                         2,
		"es2json_store_calls_total{op=mget}":           2,
		"es2json_archive_writes_total{result=success}": 0,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestExport_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Export(reg, sampleSnapshot()); err != nil {
		t.Fatalf("first Export() error = %v", err)
	}
	if err := Export(reg, sampleSnapshot()); err == nil {
		t.Error("second Export() into the same registry should fail")
	}
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Push(t.Context(), srv.URL, sampleSnapshot()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if !strings.Contains(path, "/job/"+PushJob) || !strings.Contains(path, "/run_id/run-7") {
		t.Errorf("path = %s, want job and run_id grouping", path)
	}
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Push(t.Context(), srv.URL, sampleSnapshot()); err == nil {
		t.Error("Push() should fail on a 500 from the gateway")
	}
}
