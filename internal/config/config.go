// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	collyfetcher "github.com/JakeFAU/mostaql-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/mostaql-scraper/internal/extract"
	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

// AppName names the per-user config directory.
const AppName = "mostaql-scraper"

// FileName is the config file looked up by Discover.
const FileName = "config.yaml"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scraper    ScraperConfig    `mapstructure:"scraper" yaml:"scraper"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness" yaml:"politeness"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres   PostgresConfig   `mapstructure:"postgres" yaml:"postgres"`
	Mongo      MongoConfig      `mapstructure:"mongo" yaml:"mongo"`
	GCS        GCSConfig        `mapstructure:"gcs" yaml:"gcs"`
	PubSub     PubSubConfig     `mapstructure:"pubsub" yaml:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// ScraperConfig governs link collection and detail extraction.
type ScraperConfig struct {
	ListURL           string `mapstructure:"list_url" yaml:"list_url"`
	Pages             int    `mapstructure:"pages" yaml:"pages"`
	PerPageLimit      int    `mapstructure:"per_page_limit" yaml:"per_page_limit"`
	Origin            string `mapstructure:"origin" yaml:"origin"`
	ProjectPathMarker string `mapstructure:"project_path_marker" yaml:"project_path_marker"`
	Concurrency       int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PolitenessConfig sets the delay between consecutive requests.
type PolitenessConfig struct {
	DelayMs int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// OutputConfig locates the CSV output.
type OutputConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Filename string `mapstructure:"filename" yaml:"filename"`
}

// SQLiteConfig enables the SQLite record store when Path is set.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig enables the Postgres record store when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Table    string `mapstructure:"table" yaml:"table"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// MongoConfig enables the MongoDB record store when URI is set.
type MongoConfig struct {
	URI        string `mapstructure:"uri" yaml:"uri"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// GCSConfig enables artifact upload when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// PubSubConfig enables run notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// MetricsConfig enables the metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development" yaml:"development"`
	Level       string `mapstructure:"level" yaml:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Dir returns the per-user config directory.
// On Linux: ~/.config/mostaql-scraper
// On macOS: ~/Library/Application Support/mostaql-scraper
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Discover returns the first config file found under the XDG config
// directories, or "" when there is none.
func Discover() string {
	path, err := xdg.SearchConfigFile(filepath.Join(AppName, FileName))
	if err != nil {
		return ""
	}
	return path
}

// Marshal renders c as YAML using the same keys Load reads.
func (c Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return b, nil
}

// Save validates c and writes it to path via a temp file and rename.
// An existing file is left untouched unless overwrite is set.
func Save(path string, c Config, overwrite bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat config: %w", err)
		}
	}
	b, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.list_url", scraper.DefaultListURL)
	v.SetDefault("scraper.pages", scraper.DefaultPages)
	v.SetDefault("scraper.per_page_limit", scraper.DefaultPerPageLimit)
	v.SetDefault("scraper.origin", extract.DefaultOrigin)
	v.SetDefault("scraper.project_path_marker", extract.DefaultProjectPathMarker)
	v.SetDefault("scraper.concurrency", 1)
	v.SetDefault("http.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("http.timeout_seconds", int(collyfetcher.DefaultTimeout/time.Second))
	v.SetDefault("politeness.delay_ms", int(scraper.DefaultDelay/time.Millisecond))
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.filename", scraper.DefaultOutputName)
	v.SetDefault("sqlite.path", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "projects")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "mostaql")
	v.SetDefault("mongo.collection", "projects")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", "exports")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if u, err := url.Parse(c.Scraper.ListURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scraper.list_url must be an absolute URL")
	}
	if c.Scraper.Pages <= 0 {
		return fmt.Errorf("scraper.pages must be > 0")
	}
	if c.Scraper.PerPageLimit <= 0 {
		return fmt.Errorf("scraper.per_page_limit must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Politeness.DelayMs < 0 {
		return fmt.Errorf("politeness.delay_ms must be >= 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if strings.TrimSpace(c.Output.Filename) == "" {
		return fmt.Errorf("output.filename must be set")
	}
	if c.Mongo.URI != "" && (c.Mongo.Database == "" || c.Mongo.Collection == "") {
		return fmt.Errorf("mongo.database and mongo.collection must be set with mongo.uri")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

// Timeout returns the per-request fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay returns the polite delay between requests.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Politeness.DelayMs) * time.Millisecond
}

// Params returns the run arguments described by the configuration.
func (c Config) Params() scraper.Params {
	return scraper.Params{
		ListURL:      c.Scraper.ListURL,
		Pages:        c.Scraper.Pages,
		PerPageLimit: c.Scraper.PerPageLimit,
	}
}
