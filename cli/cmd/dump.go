package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/es2json/adapter"
	"github.com/justapithecus/es2json/adapter/redis"
	"github.com/justapithecus/es2json/adapter/webhook"
	es2jsonconfig "github.com/justapithecus/es2json/cli/config"
	"github.com/justapithecus/es2json/lode"
	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/metrics"
	"github.com/justapithecus/es2json/policy"
	"github.com/justapithecus/es2json/runtime"
	"github.com/justapithecus/es2json/sink"
	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/store/elastic"
	"github.com/justapithecus/es2json/types"
)

// allIndices partitions archived scans that name no index.
const allIndices = "_all"

// dialStore connects to the document store. Tests replace it.
var dialStore = func(ctx context.Context, cfg elastic.Config) (store.Store, error) {
	return elastic.Dial(ctx, cfg)
}

// DumpCommand returns the dump command.
// Dump is the only command that talks to a document store.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Harvest documents from an Elasticsearch index as line-delimited JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to es2json.yaml"},
			// Connection
			&cli.StringFlag{Name: "host", Usage: "Store hostname or IP", Value: types.DefaultHost},
			&cli.IntFlag{Name: "port", Usage: "Store port", Value: types.DefaultPort},
			&cli.StringFlag{Name: "index", Usage: "Index (alias or pattern for scans)"},
			&cli.StringFlag{Name: "type", Usage: "Legacy mapping type (servers below 7 only)"},
			&cli.StringFlag{Name: "server", Usage: "http://host:port/index/type/id?pretty, overrides host/port/index/type/id/pretty"},
			&cli.IntFlag{Name: "timeout", Usage: "Per-request timeout in seconds", Value: int(types.DefaultTimeout / time.Second)},
			// Mode selectors
			&cli.StringFlag{Name: "id", Usage: "Retrieve a single document"},
			&cli.StringFlag{Name: "idfile", Usage: "Retrieve the ids listed in a file"},
			&cli.StringFlag{Name: "idfile-consume", Usage: "Retrieve the ids listed in a file and shrink it to the misses"},
			// Retrieval
			&cli.StringFlag{Name: "body", Usage: "Search body: inline JSON or a path to a JSON file"},
			&cli.StringFlag{Name: "includes", Usage: "Comma-separated fields to include"},
			&cli.StringFlag{Name: "excludes", Usage: "Comma-separated fields to exclude"},
			&cli.BoolFlag{Name: "headless", Usage: "Print the document source only, without metadata"},
			&cli.BoolFlag{Name: "source", Usage: "Include the document source", Value: true},
			&cli.StringFlag{Name: "size", Usage: "Bounded window: N (first N hits) or N:M (hits N to M)"},
			&cli.IntFlag{Name: "chunksize", Usage: "Scroll page and multi-get chunk size", Value: types.DefaultChunkSize},
			&cli.BoolFlag{Name: "verbose", Usage: "Debug logging and processed/total progress on stderr"},
			// Output
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print records"},
			&cli.StringFlag{Name: "output", Usage: "Record output format: ndjson or msgpack", Value: "ndjson"},
			&cli.StringFlag{Name: "report", Usage: "Write the run report to a path (- for stderr)"},
			&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: random UUID)"},
			// Archive
			&cli.StringFlag{Name: "archive-backend", Usage: "Archive backend: fs or s3"},
			&cli.StringFlag{Name: "archive-path", Usage: "Archive path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "archive-s3-region", Usage: "AWS region for the S3 archive"},
			&cli.StringFlag{Name: "archive-s3-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
			&cli.BoolFlag{Name: "archive-s3-path-style", Usage: "Force path-style S3 addressing"},
			// Notification
			&cli.StringFlag{Name: "notify-webhook", Usage: "POST a harvest_completed event to this URL"},
			&cli.StringFlag{Name: "notify-redis", Usage: "PUBLISH a harvest_completed event via this redis URL"},
			&cli.StringFlag{Name: "notify-channel", Usage: "Redis channel", Value: redis.DefaultChannel},
			&cli.IntFlag{Name: "notify-retries", Usage: "Notification retry attempts", Value: webhook.DefaultRetries},
			// Metrics
			&cli.StringFlag{Name: "metrics-push", Usage: "Pushgateway URL for run metrics"},
		},
		Action: dumpAction,
	}
}

// dumpOptions is the resolved dump invocation.
type dumpOptions struct {
	retrieval   *types.RetrievalConfig
	runID       string
	pretty      bool
	output      string
	report      string
	archive     archiveChoice
	notify      notifyChoice
	metricsPush string
}

// archiveChoice holds the parsed archive configuration.
type archiveChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// notifyChoice holds the parsed notification configuration.
type notifyChoice struct {
	webhookURL     string
	webhookHeaders map[string]string
	webhookTimeout time.Duration
	webhookRetries int
	redisURL       string
	redisChannel   string
	redisTimeout   time.Duration
	redisRetries   int
}

func dumpAction(c *cli.Context) error {
	opts, err := parseDumpOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeConfig)
	}
	// Reject contradictions before anything touches the store.
	if err := opts.retrieval.Validate(); err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeConfig)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta := &types.RunMeta{
		RunID:     opts.runID,
		Index:     opts.retrieval.Index,
		Mode:      opts.retrieval.Mode,
		StartedAt: time.Now().UTC(),
	}
	if meta.Index == "" {
		meta.Index = allIndices
	}
	logger := log.NewLoggerWithWriter(meta, c.App.ErrWriter, log.WithVerbose(opts.retrieval.Verbose))
	defer func() { _ = logger.Sync() }()

	st, err := dialStore(ctx, elastic.Config{
		Address: opts.retrieval.Address,
		Timeout: opts.retrieval.Timeout,
		Logger:  logger,
	})
	if err != nil {
		outcome := runtime.DetermineOutcome(err)
		return cli.Exit(outcome.Message, runtime.ExitCode(outcome.Status))
	}

	config := &runtime.RunConfig{
		Retrieval:      opts.retrieval,
		RunMeta:        meta,
		Store:          st,
		MetricsPushURL: opts.metricsPush,
		Collector:      metrics.NewCollector(string(meta.Mode), meta.Index, opts.archive.backend, meta.RunID),
		Logger:         logger,
	}
	if opts.retrieval.Verbose {
		config.Progress = c.App.ErrWriter
	}

	switch opts.output {
	case "msgpack":
		frames := sink.NewFrames(c.App.Writer, meta.RunID)
		config.Output = policy.NewStrictPolicy(frames)
		config.Summarizer = frames
	default:
		config.Output = policy.NewStrictPolicy(sink.NewNDJSON(c.App.Writer, opts.pretty))
	}

	if opts.archive.path != "" {
		client, err := buildArchiveClient(ctx, opts.archive, lode.ConfigFor(meta))
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), runtime.ExitCodeFailure)
		}
		defer func() { _ = client.Close() }()
		config.Archive = client
		config.FileWriter = client
		config.StoragePath = buildStoragePath(opts.archive)
	}

	notifier, err := buildNotifier(opts.notify)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid notification config: %v", err), runtime.ExitCodeConfig)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
		config.Notifier = notifier
	}

	orchestrator, err := runtime.NewRunOrchestrator(config)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	if opts.report != "" {
		if err := runtime.WriteRunReport(result.Report, opts.report); err != nil {
			logger.Warn("failed to write run report", map[string]any{"error": err.Error()})
		}
	}

	if result.Outcome.Status != types.OutcomeSuccess {
		return cli.Exit(result.Outcome.Message, result.ExitCode)
	}
	return nil
}

// parseDumpOptions merges flags over the optional config file.
// CLI flags always win; config values replace urfave defaults.
func parseDumpOptions(c *cli.Context) (*dumpOptions, error) {
	if err := rejectArgs(c); err != nil {
		return nil, err
	}

	var cfg *es2jsonconfig.Config
	if path := c.String("config"); path != "" {
		loaded, err := es2jsonconfig.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	host := resolveString(c, "host", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Connection.Host }))
	port := resolveInt(c, "port", configVal(cfg, func(c *es2jsonconfig.Config) int { return c.Connection.Port }))
	index := resolveString(c, "index", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Connection.Index }))
	docType := resolveString(c, "type", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Connection.Type }))
	id := c.String("id")
	pretty := resolveBool(c, "pretty", configVal(cfg, func(c *es2jsonconfig.Config) bool { return c.Output.Pretty }))
	scheme := "http"

	if raw := c.String("server"); raw != "" {
		srv, err := parseServerURL(raw)
		if err != nil {
			return nil, err
		}
		scheme, host = srv.scheme, srv.host
		if srv.port != 0 {
			port = srv.port
		}
		if srv.index != "" {
			index = srv.index
		}
		if srv.docType != "" {
			docType = srv.docType
		}
		if srv.id != "" {
			id = srv.id
		}
		pretty = pretty || srv.pretty
	}

	mode, err := types.ResolveMode(id, c.String("idfile"), c.String("idfile-consume"))
	if err != nil {
		return nil, err
	}

	window, err := types.ParseWindow(c.String("size"))
	if err != nil {
		return nil, err
	}

	body, err := loadBody(c.String("body"))
	if err != nil {
		return nil, err
	}

	timeout := configVal(cfg, func(c *es2jsonconfig.Config) time.Duration { return c.Connection.Timeout.Duration })
	if c.IsSet("timeout") || timeout <= 0 {
		timeout = time.Duration(c.Int("timeout")) * time.Second
	}

	includeSource := c.Bool("source")
	if !c.IsSet("source") {
		if src := configVal(cfg, func(c *es2jsonconfig.Config) *bool { return c.Retrieval.Source }); src != nil {
			includeSource = *src
		}
	}

	retrieval := &types.RetrievalConfig{
		Address:       fmt.Sprintf("%s://%s", scheme, joinHostPort(host, port)),
		Index:         index,
		Type:          docType,
		Timeout:       timeout,
		ChunkSize:     resolveInt(c, "chunksize", configVal(cfg, func(c *es2jsonconfig.Config) int { return c.Retrieval.ChunkSize })),
		Verbose:       resolveBool(c, "verbose", configVal(cfg, func(c *es2jsonconfig.Config) bool { return c.Retrieval.Verbose })),
		Headless:      resolveBool(c, "headless", configVal(cfg, func(c *es2jsonconfig.Config) bool { return c.Retrieval.Headless })),
		IncludeSource: includeSource,
		Includes:      resolveList(c, "includes", configVal(cfg, func(c *es2jsonconfig.Config) []string { return c.Retrieval.Includes })),
		Excludes:      resolveList(c, "excludes", configVal(cfg, func(c *es2jsonconfig.Config) []string { return c.Retrieval.Excludes })),
		Query:         body,
		Window:        window,
		Mode:          mode,
	}
	switch mode {
	case types.ModeID:
		retrieval.ID = id
	case types.ModeIDFile:
		retrieval.IDFile = c.String("idfile")
	case types.ModeIDFileConsume:
		retrieval.IDFile = c.String("idfile-consume")
	}

	output := resolveString(c, "output", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Output.Format }))
	switch output {
	case "ndjson", "msgpack":
	default:
		return nil, types.NewConfigError("output", fmt.Sprintf("--output must be ndjson or msgpack, got %q", output))
	}
	if output == "msgpack" && pretty {
		fmt.Fprintln(c.App.ErrWriter, "Warning: --pretty is ignored for msgpack output")
	}

	archive, err := parseArchiveChoice(c, cfg)
	if err != nil {
		return nil, err
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	return &dumpOptions{
		retrieval:   retrieval,
		runID:       runID,
		pretty:      pretty,
		output:      output,
		report:      resolveString(c, "report", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Output.Report })),
		archive:     archive,
		notify:      parseNotifyChoice(c, cfg),
		metricsPush: resolveString(c, "metrics-push", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Metrics.PushURL })),
	}, nil
}

func parseArchiveChoice(c *cli.Context, cfg *es2jsonconfig.Config) (archiveChoice, error) {
	choice := archiveChoice{
		backend:   resolveString(c, "archive-backend", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Archive.Backend })),
		path:      resolveString(c, "archive-path", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Archive.Path })),
		region:    resolveString(c, "archive-s3-region", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Archive.Region })),
		endpoint:  resolveString(c, "archive-s3-endpoint", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Archive.Endpoint })),
		pathStyle: resolveBool(c, "archive-s3-path-style", configVal(cfg, func(c *es2jsonconfig.Config) bool { return c.Archive.S3PathStyle })),
	}
	if choice.path == "" {
		if choice.backend != "" {
			return choice, types.NewConfigError("archive-path", "--archive-path is required when --archive-backend is set")
		}
		return choice, nil
	}
	switch choice.backend {
	case "":
		choice.backend = "fs"
	case "fs", "s3":
	default:
		return choice, types.NewConfigError("archive-backend", fmt.Sprintf("--archive-backend must be fs or s3, got %q", choice.backend))
	}
	if choice.backend == "fs" && (choice.region != "" || choice.endpoint != "" || choice.pathStyle) {
		fmt.Fprintln(c.App.ErrWriter, "Warning: S3 archive flags are ignored for the fs backend")
	}
	return choice, nil
}

func parseNotifyChoice(c *cli.Context, cfg *es2jsonconfig.Config) notifyChoice {
	choice := notifyChoice{
		webhookURL:     resolveString(c, "notify-webhook", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Notify.Webhook.URL })),
		webhookHeaders: configVal(cfg, func(c *es2jsonconfig.Config) map[string]string { return c.Notify.Webhook.Headers }),
		webhookTimeout: configVal(cfg, func(c *es2jsonconfig.Config) time.Duration { return c.Notify.Webhook.Timeout.Duration }),
		webhookRetries: resolveRetries(c, configVal(cfg, func(c *es2jsonconfig.Config) *int { return c.Notify.Webhook.Retries })),
		redisURL:       resolveString(c, "notify-redis", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Notify.Redis.URL })),
		redisChannel:   resolveString(c, "notify-channel", configVal(cfg, func(c *es2jsonconfig.Config) string { return c.Notify.Redis.Channel })),
		redisTimeout:   configVal(cfg, func(c *es2jsonconfig.Config) time.Duration { return c.Notify.Redis.Timeout.Duration }),
		redisRetries:   resolveRetries(c, configVal(cfg, func(c *es2jsonconfig.Config) *int { return c.Notify.Redis.Retries })),
	}
	return choice
}

// resolveRetries prefers the flag, then an explicit config value (0 included).
func resolveRetries(c *cli.Context, cfgVal *int) int {
	if c.IsSet("notify-retries") || cfgVal == nil {
		return c.Int("notify-retries")
	}
	return *cfgVal
}

// buildNotifier returns nil when no notifier is configured.
func buildNotifier(choice notifyChoice) (adapter.Adapter, error) {
	var multi adapter.Multi
	if choice.webhookURL != "" {
		a, err := webhook.New(webhook.Config{
			URL:     choice.webhookURL,
			Headers: choice.webhookHeaders,
			Timeout: choice.webhookTimeout,
			Retries: choice.webhookRetries,
		})
		if err != nil {
			return nil, err
		}
		multi = append(multi, a)
	}
	if choice.redisURL != "" {
		a, err := redis.New(redis.Config{
			URL:     choice.redisURL,
			Channel: choice.redisChannel,
			Timeout: choice.redisTimeout,
			Retries: choice.redisRetries,
		})
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi = append(multi, a)
	}
	if len(multi) == 0 {
		return nil, nil
	}
	return multi, nil
}

// buildArchiveClient opens the Lode client for the configured backend.
func buildArchiveClient(ctx context.Context, choice archiveChoice, cfg lode.Config) (*lode.LodeClient, error) {
	switch choice.backend {
	case "fs":
		return lode.NewLodeClient(cfg, choice.path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(choice.path)
		return lode.NewLodeS3Client(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", choice.backend)
	}
}

// buildStoragePath describes the archive location for notifications.
func buildStoragePath(choice archiveChoice) string {
	if choice.backend == "s3" {
		return "s3://" + strings.TrimSuffix(choice.path, "/")
	}
	return "file://" + choice.path
}

// rejectArgs fails on positional arguments: dump takes flags only.
// A boolean word right after --source is the space-separated form
// "--source false", which the flag parser leaves behind as an argument.
func rejectArgs(c *cli.Context) error {
	if c.NArg() == 0 {
		return nil
	}
	first := c.Args().First()
	if v, ok := parseBoolWord(first); ok && c.IsSet("source") {
		if !v && c.Bool("headless") {
			return types.NewConfigError("headless", types.HeadlessWithoutSourceMessage)
		}
		return types.NewConfigError("source", fmt.Sprintf("--source takes its value as --source=%s", first))
	}
	return types.NewConfigError("args", fmt.Sprintf("unexpected argument %q", first))
}

// parseBoolWord accepts the boolean spellings of the original command line.
func parseBoolWord(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "yes", "true", "t", "y", "1":
		return true, true
	case "no", "false", "f", "n", "0":
		return false, true
	}
	return false, false
}

// serverURL is the parsed form of --server.
type serverURL struct {
	scheme  string
	host    string
	port    int
	index   string
	docType string
	id      string
	pretty  bool
}

// parseServerURL splits http://host:port/index/type/id?pretty.
// Path segments after the host are optional from the right.
func parseServerURL(raw string) (*serverURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &types.ConfigError{Field: "server", Msg: fmt.Sprintf("invalid --server %q", raw), Err: err}
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, types.NewConfigError("server", fmt.Sprintf("invalid --server %q: want http://host:port/index/type/id", raw))
	}

	srv := &serverURL{scheme: u.Scheme, host: u.Hostname()}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, &types.ConfigError{Field: "server", Msg: fmt.Sprintf("invalid port in --server %q", raw), Err: err}
		}
		srv.port = port
	}
	_, srv.pretty = u.Query()["pretty"]

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	fields := []*string{&srv.index, &srv.docType, &srv.id}
	for i, seg := range segments {
		if i >= len(fields) {
			break
		}
		*fields[i] = seg
	}
	return srv, nil
}

// loadBody reads --body as inline JSON, or as a file path otherwise.
func loadBody(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if !strings.HasPrefix(s, "{") {
		b, err := os.ReadFile(s)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, types.NewConfigError("body", fmt.Sprintf("--body is neither JSON nor an existing file: %s", s))
			}
			return nil, &types.ConfigError{Field: "body", Msg: "cannot read --body file", Err: err}
		}
		data = b
	}
	if !json.Valid(data) {
		return nil, types.NewConfigError("body", "--body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

// configVal safely extracts a value from a possibly nil config.
func configVal[T any](cfg *es2jsonconfig.Config, fn func(*es2jsonconfig.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return fn(cfg)
}

// resolveString returns the CLI value when set, then the config value, then
// the urfave default.
func resolveString(c *cli.Context, flag, cfgVal string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(flag)
}

// resolveInt treats a zero config value as unset.
func resolveInt(c *cli.Context, flag string, cfgVal int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(flag)
}

// resolveBool lets a config true enable a flag that defaults to false.
func resolveBool(c *cli.Context, flag string, cfgVal bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return cfgVal || c.Bool(flag)
}

func resolveList(c *cli.Context, flag string, cfgVal []string) []string {
	if c.IsSet(flag) || len(cfgVal) == 0 {
		return splitList(c.String(flag))
	}
	return cfgVal
}
