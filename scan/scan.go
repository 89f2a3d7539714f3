// Package scan implements the scan engine: a cursor over a whole index (or
// query result) that yields one normalized record per hit.
//
// A Scanner moves through INIT -> SCANNING -> DONE, or into ERROR from INIT or
// SCANNING. It opens either a scroll cursor or, when a window is configured, a
// single bounded from/size search.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/normalize"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// State is the scanner lifecycle state.
type State int

const (
	StateInit State = iota
	StateScanning
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateScanning:
		return "scanning"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config describes one scan.
type Config struct {
	Target store.Target
	// Query is the optional search body. Empty means match_all.
	Query json.RawMessage
	// PageSize is the scroll page size. Defaults to types.DefaultChunkSize.
	PageSize int
	// Window bounds the scan to one from/size search instead of a cursor.
	Window *types.Window
	// KeepAlive is the scroll context lifetime. Defaults to types.DefaultKeepAlive.
	KeepAlive time.Duration
	// Verbose reports processed/total to the progress writer.
	Verbose bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithCollector records page and store-call metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Scanner) { s.collector = c }
}

// WithProgress sets where verbose progress lines are written.
func WithProgress(w io.Writer) Option {
	return func(s *Scanner) { s.progress = w }
}

// Progress is the processed/total counter pair.
type Progress struct {
	Processed int64
	Total     int64
}

// Scanner iterates over the records of one scan. Not safe for concurrent use.
type Scanner struct {
	st        store.Store
	norm      *normalize.Normalizer
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	progress  io.Writer

	state    State
	scrollID string
	buf      []store.Hit
	cur      types.Record
	err      error

	processed int64
	total     int64
}

// New creates a Scanner in the INIT state. No store call is made until Next.
func New(st store.Store, norm *normalize.Normalizer, cfg Config, opts ...Option) *Scanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = types.DefaultChunkSize
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = types.DefaultKeepAlive
	}
	s := &Scanner{
		st:     st,
		norm:   norm,
		cfg:    cfg,
		logger: log.Nop(),
		state:  StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next advances to the next record. It returns false on DONE or ERROR;
// check Err to tell them apart.
func (s *Scanner) Next(ctx context.Context) bool {
	for {
		switch s.state {
		case StateDone, StateError:
			return false
		case StateInit:
			if err := s.open(ctx); err != nil {
				s.fail(ctx, err)
				return false
			}
			continue
		}

		if len(s.buf) > 0 {
			hit := s.buf[0]
			s.buf = s.buf[1:]
			rec, err := s.norm.Normalize(hit)
			if err != nil {
				s.fail(ctx, err)
				return false
			}
			s.cur = rec
			s.processed++
			return true
		}

		if s.scrollID == "" {
			s.finish(ctx)
			return false
		}
		s.report()
		if err := ctx.Err(); err != nil {
			s.fail(ctx, err)
			return false
		}
		if err := s.continueScroll(ctx); err != nil {
			s.fail(ctx, err)
			return false
		}
	}
}

func (s *Scanner) open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := store.SearchRequest{
		Target: s.cfg.Target,
		Body:   s.cfg.Query,
		Source: s.norm.SourceFilter(),
	}
	if s.cfg.Window != nil {
		req.From = s.cfg.Window.From
		req.Size = s.cfg.Window.Size
	} else {
		req.Size = s.cfg.PageSize
		req.KeepAlive = s.cfg.KeepAlive
	}

	page, err := s.search(ctx, req)
	if err != nil {
		return err
	}

	s.state = StateScanning
	s.total = page.Total
	s.buf = page.Hits
	s.scrollID = page.ScrollID

	if s.cfg.Window != nil {
		s.scrollID = ""
	}
	if len(page.Hits) == 0 {
		s.finish(ctx)
	}

	s.logger.Debug("scan opened", map[string]any{
		"index":  s.cfg.Target.Index,
		"total":  s.total,
		"window": s.cfg.Window != nil,
	})
	return nil
}

func (s *Scanner) search(ctx context.Context, req store.SearchRequest) (*store.Page, error) {
	s.collector.IncStoreCall(string(store.OpSearch))
	page, err := s.st.Search(ctx, req)
	if err != nil {
		s.collector.IncStoreError(string(store.OpSearch))
		return nil, fmt.Errorf("open scan on %s: %w", req.Index, err)
	}
	s.collector.IncScrollPages()
	return page, nil
}

func (s *Scanner) continueScroll(ctx context.Context) error {
	s.collector.IncStoreCall(string(store.OpScroll))
	page, err := s.st.Scroll(ctx, s.scrollID, s.cfg.KeepAlive)
	if err != nil {
		s.collector.IncStoreError(string(store.OpScroll))
		return fmt.Errorf("continue scan on %s: %w", s.cfg.Target.Index, err)
	}
	s.collector.IncScrollPages()

	if page.ScrollID != "" {
		s.scrollID = page.ScrollID
	}
	if len(page.Hits) == 0 {
		s.finish(ctx)
		return nil
	}
	s.buf = page.Hits
	return nil
}

func (s *Scanner) finish(ctx context.Context) {
	if s.state == StateDone {
		return
	}
	s.state = StateDone
	s.report()
	s.clear(ctx)
	s.logger.Debug("scan done", map[string]any{"processed": s.processed, "total": s.total})
}

func (s *Scanner) fail(ctx context.Context, err error) {
	s.state = StateError
	s.err = err
	s.buf = nil
	s.clear(ctx)
}

// clear releases the scroll context. It uses a detached context so a
// canceled run still frees server-side resources.
func (s *Scanner) clear(ctx context.Context) {
	if s.scrollID == "" {
		return
	}
	id := s.scrollID
	s.scrollID = ""

	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), types.DefaultTimeout)
	defer cancel()
	s.collector.IncStoreCall(string(store.OpClearScroll))
	if err := s.st.ClearScroll(clearCtx, id); err != nil {
		s.collector.IncStoreError(string(store.OpClearScroll))
		s.logger.Warn("failed to clear scroll", map[string]any{"error": err.Error()})
	}
}

func (s *Scanner) report() {
	if !s.cfg.Verbose || s.progress == nil {
		return
	}
	fmt.Fprintf(s.progress, "%d/%d\n", s.processed, s.total)
}

// Record returns the record produced by the last successful Next.
func (s *Scanner) Record() types.Record {
	return s.cur
}

// Err returns the error that moved the scanner to ERROR, if any.
func (s *Scanner) Err() error {
	return s.err
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	return s.state
}

// Progress returns the processed/total counters.
func (s *Scanner) Progress() Progress {
	return Progress{Processed: s.processed, Total: s.total}
}

// Close releases the scroll context if the scan stopped early.
func (s *Scanner) Close(ctx context.Context) {
	if s.state == StateInit || s.state == StateScanning {
		s.state = StateDone
	}
	s.clear(ctx)
}
