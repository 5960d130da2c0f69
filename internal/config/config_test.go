package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"optiondesk/internal/models"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be created: %v", name, err)
		}
	}

	if cfg.Streams.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.Streams.ReconnectDelay)
	}
	if cfg.Streams.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", cfg.Streams.PingInterval)
	}
	if cfg.Trading.TargetProfitGoal != 1000 {
		t.Errorf("TargetProfitGoal = %v, want 1000", cfg.Trading.TargetProfitGoal)
	}
	if cfg.Catalog.CachePath != filepath.Join(dir, "catalog.db") {
		t.Errorf("CachePath = %q", cfg.Catalog.CachePath)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[server]
base_url = "http://trader.local:9000"
ws_base_url = "wss://trader.local:9000/"

[streams]
index_mode = "single"
reconnect_delay = "5s"

[trading]
target_profit_goal = 2500.0
default_underlying = "SENSEX"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Streams.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Streams.ReconnectDelay)
	}
	if got := cfg.IndexURL(models.SENSEX); got != "wss://trader.local:9000/ws/index" {
		t.Errorf("IndexURL = %q", got)
	}
	if got := cfg.StreamURL(cfg.Streams.LTPPath); got != "wss://trader.local:9000/ws/ltp" {
		t.Errorf("StreamURL = %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPTIONDESK_BASE_URL", "http://override:8080")
	t.Setenv("KITE_API_KEY", "kite-key")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "http://override:8080" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Credentials.Kite.APIKey != "kite-key" {
		t.Errorf("Kite.APIKey = %q", cfg.Credentials.Kite.APIKey)
	}
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KITE_ACCESS_TOKEN=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KITE_ACCESS_TOKEN", "")
	os.Unsetenv("KITE_ACCESS_TOKEN")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credentials.Kite.AccessToken != "from-dotenv" {
		t.Errorf("AccessToken = %q, want from-dotenv", cfg.Credentials.Kite.AccessToken)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{BaseURL: "http://localhost:8000", WSBaseURL: "ws://localhost:8000"},
			Streams: StreamsConfig{IndexMode: "split", ReconnectDelay: 3 * time.Second, PingInterval: 15 * time.Second},
			Trading: TradingConfig{TargetProfitGoal: 1000, DefaultUnderlying: "NIFTY"},
			Catalog: CatalogConfig{Supplier: "http", CacheBackend: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad ws scheme", func(c *Config) { c.Server.WSBaseURL = "http://x" }, true},
		{"bad index mode", func(c *Config) { c.Streams.IndexMode = "both" }, true},
		{"zero reconnect delay", func(c *Config) { c.Streams.ReconnectDelay = 0 }, true},
		{"zero goal", func(c *Config) { c.Trading.TargetProfitGoal = 0 }, true},
		{"unknown underlying", func(c *Config) { c.Trading.DefaultUnderlying = "BANKNIFTY" }, true},
		{"unknown supplier", func(c *Config) { c.Catalog.Supplier = "csv" }, true},
		{"unknown backend", func(c *Config) { c.Catalog.CacheBackend = "bolt" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
