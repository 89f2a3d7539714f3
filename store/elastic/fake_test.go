package elastic

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeES is a chi-routed stand-in for the Elasticsearch REST surface the
// client uses: info, get, search, scroll, clear scroll and mget.
type fakeES struct {
	mu      sync.Mutex
	version string
	docs    map[string][]fakeDoc
	scrolls map[string]*fakeScroll
	nextID  int
	// failures makes the next N requests on a route answer with a status.
	failures map[string][]int
	// requests records "METHOD path?query" in arrival order.
	requests []string
	bodies   []string
}

type fakeDoc struct {
	ID     string
	Source map[string]any
}

type fakeScroll struct {
	index string
	docs  []fakeDoc
	pos   int
	size  int
}

func newFakeES(t *testing.T, version string) (*fakeES, *httptest.Server) {
	t.Helper()
	f := &fakeES{
		version:  version,
		docs:     make(map[string][]fakeDoc),
		scrolls:  make(map[string]*fakeScroll),
		failures: make(map[string][]int),
	}

	r := chi.NewRouter()
	r.Use(f.middleware)
	r.Get("/", f.info)
	r.Post("/_search/scroll", f.scroll)
	r.Get("/_search/scroll", f.scroll)
	r.Delete("/_search/scroll", f.clearScroll)
	r.Delete("/_search/scroll/{id}", f.clearScroll)
	r.HandleFunc("/{index}/_search", f.search)
	r.HandleFunc("/{index}/{type}/_search", f.search)
	r.HandleFunc("/{index}/_mget", f.mget)
	r.HandleFunc("/{index}/{type}/_mget", f.mget)
	r.Get("/{index}/{type}/{id}", f.get)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeES) put(index, id string, source map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[index] = append(f.docs[index], fakeDoc{ID: id, Source: source})
}

// failNext makes the next requests whose route key is key answer with the
// given statuses, one per request.
func (f *fakeES) failNext(key string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = append(f.failures[key], statuses...)
}

func (f *fakeES) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeES) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeES) major() int {
	n, _ := strconv.Atoi(strings.SplitN(f.version, ".", 2)[0])
	return n
}

func (f *fakeES) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		var body []byte
		if r.Body != nil {
			reader := io.Reader(r.Body)
			if r.Header.Get("Content-Encoding") == "gzip" {
				gz, err := gzip.NewReader(r.Body)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				reader = gz
			}
			body, _ = io.ReadAll(reader)
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		if r.URL.Path != "/" {
			f.requests = append(f.requests, entry)
			f.bodies = append(f.bodies, string(body))
		}
		key := routeKey(r.URL.Path)
		if queue := f.failures[key]; len(queue) > 0 {
			status := queue[0]
			f.failures[key] = queue[1:]
			f.mu.Unlock()
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"type":"injected","reason":"status %d"},"status":%d}`, status, status)
			return
		}
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func routeKey(path string) string {
	switch {
	case path == "/":
		return "info"
	case strings.HasPrefix(path, "/_search/scroll"):
		return "scroll"
	case strings.HasSuffix(path, "/_search"):
		return "search"
	case strings.HasSuffix(path, "/_mget"):
		return "mget"
	default:
		return "get"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func indexMissing(w http.ResponseWriter, index string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{
			"type":   "index_not_found_exception",
			"reason": "no such index [" + index + "]",
		},
		"status": 404,
	})
}

func (f *fakeES) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         "fake",
		"cluster_name": "fake",
		"version": map[string]any{
			"number":       f.version,
			"build_flavor": "default",
		},
		"tagline": "You Know, for Search",
	})
}

func (f *fakeES) typeName() string {
	if f.major() >= 7 {
		return "_doc"
	}
	return "doc"
}

func (f *fakeES) hit(index string, d fakeDoc, withScore bool) map[string]any {
	h := map[string]any{"_index": index, "_type": f.typeName(), "_id": d.ID, "_source": d.Source}
	if withScore {
		h["_score"] = 1.0
	}
	return h
}

func (f *fakeES) total(n int) any {
	if f.major() >= 7 {
		return map[string]any{"value": n, "relation": "eq"}
	}
	return n
}

func (f *fakeES) get(w http.ResponseWriter, r *http.Request) {
	index, id := chi.URLParam(r, "index"), chi.URLParam(r, "id")
	f.mu.Lock()
	docs, ok := f.docs[index]
	f.mu.Unlock()
	if !ok {
		indexMissing(w, index)
		return
	}
	for _, d := range docs {
		if d.ID == id {
			h := f.hit(index, d, false)
			h["found"] = true
			if r.URL.Query().Get("_source") == "false" {
				delete(h, "_source")
			}
			writeJSON(w, http.StatusOK, h)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_type": f.typeName(), "_id": id, "found": false})
}

func (f *fakeES) search(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	q := r.URL.Query()

	f.mu.Lock()
	defer f.mu.Unlock()
	docs, ok := f.docs[index]
	if !ok {
		indexMissing(w, index)
		return
	}

	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}
	from, _ := strconv.Atoi(q.Get("from"))

	resp := map[string]any{}
	var page []fakeDoc
	if q.Get("scroll") != "" {
		f.nextID++
		id := fmt.Sprintf("scroll-%d", f.nextID)
		s := &fakeScroll{index: index, docs: docs, size: size}
		f.scrolls[id] = s
		page = s.next()
		resp["_scroll_id"] = id
	} else {
		from = min(from, len(docs))
		page = docs[from:min(from+size, len(docs))]
	}

	hits := make([]any, 0, len(page))
	for _, d := range page {
		hits = append(hits, f.hit(index, d, true))
	}
	resp["hits"] = map[string]any{"total": f.total(len(docs)), "hits": hits}
	writeJSON(w, http.StatusOK, resp)
}

func (s *fakeScroll) next() []fakeDoc {
	end := min(s.pos+s.size, len(s.docs))
	page := s.docs[s.pos:end]
	s.pos = end
	return page
}

func (f *fakeES) scroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScrollID string `json:"scroll_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scrolls[req.ScrollID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  map[string]any{"type": "search_context_missing_exception", "reason": "No search context found"},
			"status": 404,
		})
		return
	}
	page := s.next()
	hits := make([]any, 0, len(page))
	for _, d := range page {
		hits = append(hits, f.hit(s.index, d, true))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_scroll_id": req.ScrollID,
		"hits":       map[string]any{"total": f.total(len(s.docs)), "hits": hits},
	})
}

func (f *fakeES) clearScroll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scrolls[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"succeeded": true, "num_freed": 0})
		return
	}
	delete(f.scrolls, id)
	writeJSON(w, http.StatusOK, map[string]any{"succeeded": true, "num_freed": 1})
}

func (f *fakeES) openScrolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scrolls)
}

func (f *fakeES) mget(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  map[string]any{"type": "parse_exception", "reason": err.Error()},
			"status": 400,
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	docs, indexOK := f.docs[index]

	out := make([]any, 0, len(req.IDs))
	for _, id := range req.IDs {
		if !indexOK {
			out = append(out, map[string]any{
				"_index": index, "_id": id,
				"error": map[string]any{"type": "index_not_found_exception", "reason": "no such index"},
			})
			continue
		}
		found := false
		for _, d := range docs {
			if d.ID == id {
				h := f.hit(index, d, false)
				h["found"] = true
				out = append(out, h)
				found = true
				break
			}
		}
		if !found {
			out = append(out, map[string]any{"_index": index, "_type": f.typeName(), "_id": id, "found": false})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": out})
}
