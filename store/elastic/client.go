// Package elastic implements store.Store on top of the official
// Elasticsearch Go client.
//
// Version skew is handled here: the server major version is probed once at
// Dial, legacy mapping types are only sent to servers older than 7, and
// hits.total is decoded both as a number and as {"value": n}.
package elastic

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"

	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// DefaultMaxRetries is the client retry budget for transient failures.
const DefaultMaxRetries = 10

// maxBackoff caps the exponential retry backoff.
const maxBackoff = 10 * time.Second

// Config configures the client.
type Config struct {
	// Address is the base URL, e.g. http://127.0.0.1:9200.
	Address string
	// Timeout bounds each request. Defaults to types.DefaultTimeout.
	Timeout time.Duration
	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries int
	// DisableRetry turns the client retry layer off.
	DisableRetry bool
	// DisableCompression sends request bodies uncompressed.
	DisableCompression bool
	// Backoff overrides the retry backoff.
	Backoff func(attempt int) time.Duration
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
	// Logger receives connection diagnostics. Defaults to a no-op logger.
	Logger *log.Logger
}

// Client is a store.Store backed by Elasticsearch.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	version string
	major   int
	logger  *log.Logger
}

// Verify Client implements store.Store.
var _ store.Store = (*Client)(nil)

// Backoff is the default retry backoff: 500ms doubling per attempt, capped.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<uint(attempt-1))*500*time.Millisecond, maxBackoff)
}

// New builds a client without contacting the server. The server version is
// unknown until Probe (or Dial) runs; until then legacy types are sent as given.
func New(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, types.NewConfigError("address", "store address must be non-empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = types.DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Backoff
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:            []string{strings.TrimRight(cfg.Address, "/")},
		Transport:            cfg.Transport,
		MaxRetries:           cfg.MaxRetries,
		DisableRetry:         cfg.DisableRetry,
		EnableRetryOnTimeout: true,
		RetryOnStatus:        []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		RetryBackoff:         cfg.Backoff,
		CompressRequestBody:  !cfg.DisableCompression,
	})
	if err != nil {
		return nil, &types.ConfigError{Field: "address", Msg: fmt.Sprintf("invalid store address %q", cfg.Address), Err: err}
	}

	return &Client{es: es, timeout: cfg.Timeout, logger: cfg.Logger}, nil
}

// Dial builds a client and probes the server version.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Probe(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

type infoResponse struct {
	Version struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Probe fetches the server version.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return store.ClassifyTransport(store.OpInfo, "", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return statusError(store.OpInfo, "", res.StatusCode, res.Body)
	}

	var info infoResponse
	if err := decode(res.Body, &info); err != nil {
		return store.NewError(store.ErrServer, store.OpInfo, "", res.StatusCode, err)
	}

	c.version = info.Version.Number
	c.major = parseMajor(info.Version.Number)
	c.logger.Debug("connected to store", map[string]any{"version": c.version})
	return nil
}

// Version returns the probed server version, empty before Probe.
func (c *Client) Version() string {
	return c.version
}

func parseMajor(version string) int {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// docType returns the mapping type to send, if any. Servers from 7 on
// address documents by index only.
func (c *Client) docType(t store.Target) string {
	if t.Type == "" || c.major >= 7 {
		return ""
	}
	return t.Type
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
