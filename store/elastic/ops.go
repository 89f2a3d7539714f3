package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/justapithecus/es2json/store"
)

// Get implements store.Store.
func (c *Client) Get(ctx context.Context, req store.GetRequest) (store.Hit, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := []func(*esapi.GetRequest){c.es.Get.WithContext(ctx)}
	if t := c.docType(req.Target); t != "" {
		opts = append(opts, c.es.Get.WithDocumentType(t))
	}
	switch {
	case req.Source.Disabled:
		opts = append(opts, c.es.Get.WithSource("false"))
	default:
		if len(req.Source.Includes) > 0 {
			opts = append(opts, c.es.Get.WithSourceIncludes(req.Source.Includes...))
		}
		if len(req.Source.Excludes) > 0 {
			opts = append(opts, c.es.Get.WithSourceExcludes(req.Source.Excludes...))
		}
	}

	res, err := c.es.Get(req.Index, req.ID, opts...)
	if err != nil {
		return store.Hit{}, false, store.ClassifyTransport(store.OpGet, req.Index, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return store.Hit{}, false, store.ClassifyTransport(store.OpGet, req.Index, err)
	}

	// A 404 is either a missing document ({"found": false}) or a missing index
	// (an error envelope).
	if res.StatusCode == http.StatusNotFound {
		var doc hitDoc
		if err := json.Unmarshal(data, &doc); err == nil && doc.Found != nil && len(doc.Error) == 0 {
			return store.Hit{}, false, nil
		}
	}
	if res.IsError() {
		return store.Hit{}, false, statusError(store.OpGet, req.Index, res.StatusCode, bytes.NewReader(data))
	}

	var doc hitDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return store.Hit{}, false, store.NewError(store.ErrServer, store.OpGet, req.Index, res.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if doc.Found != nil && !*doc.Found {
		return store.Hit{}, false, nil
	}
	return doc.hit(false), true, nil
}

// Search implements store.Store.
func (c *Client) Search(ctx context.Context, req store.SearchRequest) (*store.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := []func(*esapi.SearchRequest){
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(splitIndex(req.Index)...),
		c.es.Search.WithSize(req.Size),
	}
	if t := c.docType(req.Target); t != "" {
		opts = append(opts, c.es.Search.WithDocumentType(t))
	}
	if len(req.Body) > 0 {
		opts = append(opts, c.es.Search.WithBody(bytes.NewReader(req.Body)))
	}
	if req.KeepAlive > 0 {
		opts = append(opts, c.es.Search.WithScroll(req.KeepAlive))
	} else if req.From > 0 {
		opts = append(opts, c.es.Search.WithFrom(req.From))
	}
	if c.major >= 7 {
		opts = append(opts, c.es.Search.WithTrackTotalHits(true))
	}
	switch {
	case req.Source.Disabled:
		opts = append(opts, c.es.Search.WithSource("false"))
	default:
		if len(req.Source.Includes) > 0 {
			opts = append(opts, c.es.Search.WithSourceIncludes(req.Source.Includes...))
		}
		if len(req.Source.Excludes) > 0 {
			opts = append(opts, c.es.Search.WithSourceExcludes(req.Source.Excludes...))
		}
	}

	res, err := c.es.Search(opts...)
	if err != nil {
		return nil, store.ClassifyTransport(store.OpSearch, req.Index, err)
	}
	defer res.Body.Close()

	return c.page(store.OpSearch, req.Index, res)
}

// Scroll implements store.Store.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*store.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// The id goes in the body: scroll ids can outgrow a URL.
	body, err := json.Marshal(map[string]string{"scroll_id": scrollID})
	if err != nil {
		return nil, fmt.Errorf("encode scroll request: %w", err)
	}

	opts := []func(*esapi.ScrollRequest){
		c.es.Scroll.WithContext(ctx),
		c.es.Scroll.WithBody(bytes.NewReader(body)),
	}
	if keepAlive > 0 {
		opts = append(opts, c.es.Scroll.WithScroll(keepAlive))
	}

	res, err := c.es.Scroll(opts...)
	if err != nil {
		return nil, store.ClassifyTransport(store.OpScroll, "", err)
	}
	defer res.Body.Close()

	return c.page(store.OpScroll, "", res)
}

func (c *Client) page(op store.Op, index string, res *esapi.Response) (*store.Page, error) {
	if res.IsError() {
		return nil, statusError(op, index, res.StatusCode, res.Body)
	}

	var sr searchResponse
	if err := decode(res.Body, &sr); err != nil {
		return nil, store.NewError(store.ErrServer, op, index, res.StatusCode, err)
	}
	total, err := parseTotal(sr.Hits.Total)
	if err != nil {
		return nil, store.NewError(store.ErrServer, op, index, res.StatusCode, err)
	}

	hits := make([]store.Hit, 0, len(sr.Hits.Hits))
	for _, d := range sr.Hits.Hits {
		hits = append(hits, d.hit(true))
	}
	return &store.Page{ScrollID: sr.ScrollID, Total: total, Hits: hits}, nil
}

// ClearScroll implements store.Store.
func (c *Client) ClearScroll(ctx context.Context, scrollID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.ClearScroll(
		c.es.ClearScroll.WithContext(ctx),
		c.es.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		return store.ClassifyTransport(store.OpClearScroll, "", err)
	}
	defer res.Body.Close()

	// An already expired context answers 404; nothing is left to release.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return statusError(store.OpClearScroll, "", res.StatusCode, res.Body)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// MultiGet implements store.Store.
func (c *Client) MultiGet(ctx context.Context, req store.MultiGetRequest) ([]store.Slot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(map[string][]string{"ids": req.IDs})
	if err != nil {
		return nil, fmt.Errorf("encode mget request: %w", err)
	}

	opts := []func(*esapi.MgetRequest){
		c.es.Mget.WithContext(ctx),
		c.es.Mget.WithIndex(req.Index),
	}
	if t := c.docType(req.Target); t != "" {
		opts = append(opts, c.es.Mget.WithDocumentType(t))
	}
	switch {
	case req.Source.Disabled:
		opts = append(opts, c.es.Mget.WithSource("false"))
	default:
		if len(req.Source.Includes) > 0 {
			opts = append(opts, c.es.Mget.WithSourceIncludes(req.Source.Includes...))
		}
		if len(req.Source.Excludes) > 0 {
			opts = append(opts, c.es.Mget.WithSourceExcludes(req.Source.Excludes...))
		}
	}

	res, err := c.es.Mget(bytes.NewReader(body), opts...)
	if err != nil {
		return nil, store.ClassifyTransport(store.OpMultiGet, req.Index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, statusError(store.OpMultiGet, req.Index, res.StatusCode, res.Body)
	}

	var mr mgetResponse
	if err := decode(res.Body, &mr); err != nil {
		return nil, store.NewError(store.ErrServer, store.OpMultiGet, req.Index, res.StatusCode, err)
	}

	slots := make([]store.Slot, 0, len(mr.Docs))
	for _, d := range mr.Docs {
		switch {
		case len(d.Error) > 0:
			slots = append(slots, store.Slot{ID: d.ID, Err: slotError(req.Index, d.Error)})
		case d.Found != nil && *d.Found:
			slots = append(slots, store.Slot{ID: d.ID, Found: true, Hit: d.hit(false)})
		default:
			slots = append(slots, store.Slot{ID: d.ID})
		}
	}
	return slots, nil
}

// splitIndex accepts comma-separated index lists for scans.
func splitIndex(index string) []string {
	if index == "" {
		return nil
	}
	parts := strings.Split(index, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
