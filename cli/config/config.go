package config

import (
	"fmt"
	"time"
)

// Config represents an es2json.yaml configuration file.
// All values are optional and act as defaults for es2json dump flags.
// CLI flags always override config values.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Output     OutputConfig     `yaml:"output"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ConnectionConfig holds store connection defaults.
type ConnectionConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Index   string   `yaml:"index"`
	Type    string   `yaml:"type"`
	Timeout Duration `yaml:"timeout"`
}

// RetrievalConfig holds record shaping defaults.
type RetrievalConfig struct {
	ChunkSize int      `yaml:"chunk_size"`
	Headless  bool     `yaml:"headless"`
	Source    *bool    `yaml:"source,omitempty"`
	Includes  []string `yaml:"includes"`
	Excludes  []string `yaml:"excludes"`
	Verbose   bool     `yaml:"verbose"`
}

// OutputConfig holds stdout and report defaults.
type OutputConfig struct {
	// Format is ndjson or msgpack.
	Format string `yaml:"format"`
	Pretty bool   `yaml:"pretty"`
	// Report is a report path, or "-" for stderr.
	Report string `yaml:"report"`
}

// ArchiveConfig holds archive storage defaults.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// NotifyConfig holds harvest notification defaults.
type NotifyConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig configures the redis notifier.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// MetricsConfig holds metrics export defaults.
type MetricsConfig struct {
	PushURL string `yaml:"push_url"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate rejects values no flag combination could make valid.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case "", "ndjson", "msgpack":
	default:
		return fmt.Errorf("output.format: must be ndjson or msgpack, got %q", c.Output.Format)
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("archive.backend: must be fs or s3, got %q", c.Archive.Backend)
	}
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port: out of range: %d", c.Connection.Port)
	}
	if c.Retrieval.ChunkSize < 0 {
		return fmt.Errorf("retrieval.chunk_size: must be >= 0, got %d", c.Retrieval.ChunkSize)
	}
	return nil
}
