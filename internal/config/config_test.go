package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	params := cfg.Params()
	if params.ListURL != scraper.DefaultListURL || params.Pages != 1 || params.PerPageLimit != 25 {
		t.Fatalf("unexpected default params: %+v", params)
	}
	if cfg.Timeout() != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.Timeout())
	}
	if cfg.Delay() != time.Second {
		t.Fatalf("expected 1s delay, got %v", cfg.Delay())
	}
	if cfg.Output.Dir != "data" || cfg.Output.Filename != "mostaql_projects.csv" {
		t.Fatalf("unexpected output defaults: %+v", cfg.Output)
	}
	if !strings.Contains(cfg.HTTP.UserAgent, "Mozilla/5.0") {
		t.Fatalf("expected browser user agent, got %q", cfg.HTTP.UserAgent)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
scraper:
  list_url: https://mostaql.com/projects?category=development
  pages: 3
  per_page_limit: 10
  concurrency: 2
http:
  user_agent: test-agent
  timeout_seconds: 30
politeness:
  delay_ms: 250
output:
  dir: /tmp/out
  filename: dev.csv
sqlite:
  path: /tmp/out/projects.db
postgres:
  dsn: postgres://localhost/scraper
  table: dev_projects
gcs:
  bucket: exports-bucket
pubsub:
  project_id: my-project
  topic: scraper-runs
metrics:
  addr: ":9102"
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scraper.Pages != 3 || cfg.Scraper.PerPageLimit != 10 || cfg.Scraper.Concurrency != 2 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.HTTP.UserAgent != "test-agent" || cfg.Timeout() != 30*time.Second {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.Delay() != 250*time.Millisecond {
		t.Fatalf("expected 250ms delay, got %v", cfg.Delay())
	}
	if cfg.Postgres.Table != "dev_projects" || cfg.GCS.Prefix != "exports" {
		t.Fatalf("expected storage settings, got %+v %+v", cfg.Postgres, cfg.GCS)
	}
	if cfg.PubSub.Topic != "scraper-runs" || cfg.Metrics.Addr != ":9102" || cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected pubsub/metrics/logging config: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "relative list url", mutate: func(c *Config) { c.Scraper.ListURL = "/projects" }, want: "scraper.list_url"},
		{name: "zero pages", mutate: func(c *Config) { c.Scraper.Pages = 0 }, want: "scraper.pages"},
		{name: "zero limit", mutate: func(c *Config) { c.Scraper.PerPageLimit = 0 }, want: "scraper.per_page_limit"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Scraper.Concurrency = 0 }, want: "scraper.concurrency"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "negative delay", mutate: func(c *Config) { c.Politeness.DelayMs = -1 }, want: "politeness.delay_ms"},
		{name: "empty output dir", mutate: func(c *Config) { c.Output.Dir = "" }, want: "output.dir"},
		{name: "empty filename", mutate: func(c *Config) { c.Output.Filename = " " }, want: "output.filename"},
		{name: "mongo without collection", mutate: func(c *Config) { c.Mongo.URI = "mongodb://localhost"; c.Mongo.Collection = "" }, want: "mongo.collection"},
		{name: "pubsub half set", mutate: func(c *Config) { c.PubSub.Topic = "runs" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Scraper.Pages = 4
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Logging.Level = "debug"

	path := filepath.Join(t.TempDir(), "nested", FileName)
	if err := Save(path, cfg, false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Save(path, cfg, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if err := Save(path, cfg, true); err != nil {
		t.Fatalf("Save(overwrite) error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load(saved) error = %v", err)
	}
	if got != cfg {
		t.Fatalf("saved config did not survive reload:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	if err := Save(path, Config{}, false); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config should not be written, stat err = %v", err)
	}
}

func TestDiscover(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(home, "system"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	if got := Discover(); got != "" {
		t.Fatalf("expected no config, got %q", got)
	}
	if Dir() != filepath.Join(home, AppName) {
		t.Fatalf("unexpected config dir %q", Dir())
	}

	path := filepath.Join(Dir(), FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("scraper:\n  pages: 2\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if got := Discover(); got != path {
		t.Fatalf("Discover() = %q, want %q", got, path)
	}
}
