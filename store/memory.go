package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store holding documents per index.
// It evaluates a small query subset (match_all, ids, term, match, prefix and
// bool must/filter/must_not) and supports fault injection and call counting
// for tests. Source includes/excludes are left to the normalizer.
type MemoryStore struct {
	mu      sync.Mutex
	indices map[string]*memIndex
	scrolls map[string]*memCursor
	nextID  int
	calls   map[Op]int
	faults  map[Op]*fault
}

type memIndex struct {
	docType string
	ids     []string
	docs    map[string]json.RawMessage
}

type memCursor struct {
	index string
	hits  []Hit
	pos   int
	size  int
}

type fault struct {
	after int
	err   error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indices: make(map[string]*memIndex),
		scrolls: make(map[string]*memCursor),
		calls:   make(map[Op]int),
		faults:  make(map[Op]*fault),
	}
}

// CreateIndex registers an index with an optional legacy type.
func (m *MemoryStore) CreateIndex(index, docType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[index]; !ok {
		m.indices[index] = &memIndex{docType: docType, docs: make(map[string]json.RawMessage)}
	}
}

// Put stores a document, creating the index if needed.
func (m *MemoryStore) Put(index, id string, source any) error {
	raw, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshal source for %s/%s: %w", index, id, err)
	}
	m.CreateIndex(index, "")

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indices[index]
	if _, exists := idx.docs[id]; !exists {
		idx.ids = append(idx.ids, id)
	}
	idx.docs[id] = raw
	return nil
}

// FailAfter makes op fail with err once it has succeeded n more times.
// A nil err clears the fault.
func (m *MemoryStore) FailAfter(op Op, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = &fault{after: n, err: err}
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of store round trips of any kind.
func (m *MemoryStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// OpenScrolls returns the number of cursors not yet cleared or exhausted.
func (m *MemoryStore) OpenScrolls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scrolls)
}

// enter records a call and returns an injected fault, if any. Caller holds mu.
func (m *MemoryStore) enter(ctx context.Context, op Op) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return ClassifyTransport(op, "", err)
	}
	f, ok := m.faults[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	return f.err
}

func (m *MemoryStore) lookup(op Op, t Target) (*memIndex, error) {
	idx, ok := m.indices[t.Index]
	if !ok {
		return nil, NewError(ErrIndexNotFound, op, t.Index, 404, nil)
	}
	if t.Type != "" && idx.docType != "" && t.Type != idx.docType {
		return nil, NewError(ErrIndexNotFound, op, t.Index, 404, fmt.Errorf("type %q missing", t.Type))
	}
	return idx, nil
}

func (m *MemoryStore) hit(index string, idx *memIndex, id string, score *float64, src SourceFilter) Hit {
	h := Hit{Index: index, Type: idx.docType, ID: id, Score: score}
	if !src.Disabled {
		h.Source = append(json.RawMessage(nil), idx.docs[id]...)
	}
	return h
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, req GetRequest) (Hit, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpGet); err != nil {
		return Hit{}, false, err
	}
	idx, err := m.lookup(OpGet, req.Target)
	if err != nil {
		return Hit{}, false, err
	}
	if _, ok := idx.docs[req.ID]; !ok {
		return Hit{}, false, nil
	}
	return m.hit(req.Index, idx, req.ID, nil, req.Source), true, nil
}

// Search implements Store.
func (m *MemoryStore) Search(ctx context.Context, req SearchRequest) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpSearch); err != nil {
		return nil, err
	}
	idx, err := m.lookup(OpSearch, req.Target)
	if err != nil {
		return nil, err
	}

	query, err := parseQuery(req.Body)
	if err != nil {
		return nil, NewError(ErrRejected, OpSearch, req.Index, 400, err)
	}

	score := 1.0
	var hits []Hit
	for _, id := range idx.ids {
		ok, err := query.matches(id, idx.docs[id])
		if err != nil {
			return nil, NewError(ErrRejected, OpSearch, req.Index, 400, err)
		}
		if ok {
			hits = append(hits, m.hit(req.Index, idx, id, &score, req.Source))
		}
	}
	total := int64(len(hits))

	size := req.Size
	if size <= 0 {
		size = 10
	}

	if req.KeepAlive <= 0 {
		from := min(max(req.From, 0), len(hits))
		end := min(from+size, len(hits))
		return &Page{Total: total, Hits: hits[from:end]}, nil
	}

	m.nextID++
	scrollID := fmt.Sprintf("scroll-%d", m.nextID)
	cur := &memCursor{index: req.Index, hits: hits, size: size}
	m.scrolls[scrollID] = cur
	return &Page{ScrollID: scrollID, Total: total, Hits: cur.next()}, nil
}

func (c *memCursor) next() []Hit {
	end := min(c.pos+c.size, len(c.hits))
	page := c.hits[c.pos:end]
	c.pos = end
	return page
}

// Scroll implements Store.
func (m *MemoryStore) Scroll(ctx context.Context, scrollID string, _ time.Duration) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpScroll); err != nil {
		return nil, err
	}
	cur, ok := m.scrolls[scrollID]
	if !ok {
		return nil, NewError(ErrRejected, OpScroll, "", 404, fmt.Errorf("no search context for %q", scrollID))
	}
	return &Page{ScrollID: scrollID, Total: int64(len(cur.hits)), Hits: cur.next()}, nil
}

// ClearScroll implements Store.
func (m *MemoryStore) ClearScroll(ctx context.Context, scrollID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpClearScroll); err != nil {
		return err
	}
	delete(m.scrolls, scrollID)
	return nil
}

// MultiGet implements Store.
func (m *MemoryStore) MultiGet(ctx context.Context, req MultiGetRequest) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpMultiGet); err != nil {
		return nil, err
	}
	idx, err := m.lookup(OpMultiGet, req.Target)
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(req.IDs))
	for _, id := range req.IDs {
		if _, ok := idx.docs[id]; !ok {
			slots = append(slots, Slot{ID: id})
			continue
		}
		slots = append(slots, Slot{ID: id, Found: true, Hit: m.hit(req.Index, idx, id, nil, req.Source)})
	}
	return slots, nil
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// memQuery is a parsed query clause.
type memQuery struct {
	kind   string
	field  string
	value  any
	values []string
	must   []*memQuery
	not    []*memQuery
}

func parseQuery(body json.RawMessage) (*memQuery, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &memQuery{kind: "match_all"}, nil
	}
	var top struct {
		Query map[string]json.RawMessage `json:"query"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("parse search body: %w", err)
	}
	if top.Query == nil {
		return &memQuery{kind: "match_all"}, nil
	}
	return parseClause(top.Query)
}

func parseClause(clause map[string]json.RawMessage) (*memQuery, error) {
	if len(clause) != 1 {
		return nil, fmt.Errorf("query clause must have exactly one key, got %d", len(clause))
	}
	for kind, raw := range clause {
		switch kind {
		case "match_all":
			return &memQuery{kind: kind}, nil
		case "ids":
			var ids struct {
				Values []string `json:"values"`
			}
			if err := json.Unmarshal(raw, &ids); err != nil {
				return nil, fmt.Errorf("parse ids: %w", err)
			}
			return &memQuery{kind: kind, values: ids.Values}, nil
		case "term", "match", "prefix":
			return parseFieldClause(kind, raw)
		case "bool":
			return parseBool(raw)
		default:
			return nil, fmt.Errorf("unsupported query clause %q", kind)
		}
	}
	return nil, fmt.Errorf("empty query clause")
}

func parseFieldClause(kind string, raw json.RawMessage) (*memQuery, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("%s must name exactly one field", kind)
	}
	for field, v := range fields {
		// Long form: {"field": {"value": x}} or {"field": {"query": x}}.
		if obj, ok := v.(map[string]any); ok {
			if inner, ok := obj["value"]; ok {
				v = inner
			} else if inner, ok := obj["query"]; ok {
				v = inner
			}
		}
		return &memQuery{kind: kind, field: field, value: v}, nil
	}
	return nil, fmt.Errorf("empty %s clause", kind)
}

func parseBool(raw json.RawMessage) (*memQuery, error) {
	var b map[string]json.RawMessage
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse bool: %w", err)
	}
	q := &memQuery{kind: "bool"}
	for occur, clauses := range b {
		parsed, err := parseClauseList(clauses)
		if err != nil {
			return nil, fmt.Errorf("bool.%s: %w", occur, err)
		}
		switch occur {
		case "must", "filter":
			q.must = append(q.must, parsed...)
		case "must_not":
			q.not = append(q.not, parsed...)
		default:
			return nil, fmt.Errorf("unsupported bool occurrence %q", occur)
		}
	}
	return q, nil
}

// parseClauseList accepts a single clause object or an array of them.
func parseClauseList(raw json.RawMessage) ([]*memQuery, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		q, err := parseClause(one)
		if err != nil {
			return nil, err
		}
		return []*memQuery{q}, nil
	}

	var many []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, err
	}
	out := make([]*memQuery, 0, len(many))
	for _, c := range many {
		q, err := parseClause(c)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (q *memQuery) matches(id string, source json.RawMessage) (bool, error) {
	switch q.kind {
	case "match_all":
		return true, nil
	case "ids":
		for _, v := range q.values {
			if v == id {
				return true, nil
			}
		}
		return false, nil
	case "term", "match", "prefix":
		return q.matchField(id, source)
	case "bool":
		for _, sub := range q.must {
			ok, err := sub.matches(id, source)
			if err != nil || !ok {
				return false, err
			}
		}
		for _, sub := range q.not {
			ok, err := sub.matches(id, source)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unsupported query clause %q", q.kind)
	}
}

func (q *memQuery) matchField(id string, source json.RawMessage) (bool, error) {
	var actual any
	if q.field == "_id" {
		actual = id
	} else {
		var doc map[string]any
		if err := json.Unmarshal(source, &doc); err != nil {
			return false, fmt.Errorf("decode source of %s: %w", id, err)
		}
		field := strings.TrimSuffix(q.field, ".keyword")
		v, ok := lookupPath(doc, field)
		if !ok {
			return false, nil
		}
		actual = v
	}

	want := fmt.Sprint(q.value)
	got := fmt.Sprint(actual)
	if q.kind == "prefix" {
		return strings.HasPrefix(got, want), nil
	}
	return got == want, nil
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
