// Package config provides configuration management for optiondesk.
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

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"optiondesk/internal/logging"
	"optiondesk/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig  `mapstructure:"server"`
	Streams     StreamsConfig `mapstructure:"streams"`
	Trading     TradingConfig `mapstructure:"trading"`
	Catalog     CatalogConfig `mapstructure:"catalog"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// ServerConfig points at the trading backend.
type ServerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	WSBaseURL string        `mapstructure:"ws_base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StreamsConfig holds the stream endpoints and reconnect timing.
type StreamsConfig struct {
	LTPPath        string        `mapstructure:"ltp_path"`
	BalancePath    string        `mapstructure:"balance_path"`
	IndexMode      string        `mapstructure:"index_mode"` // "split" or "single"
	NSEIndexPath   string        `mapstructure:"nse_index_path"`
	BSEIndexPath   string        `mapstructure:"bse_index_path"`
	IndexPath      string        `mapstructure:"index_path"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

// TradingConfig holds the pricing defaults.
type TradingConfig struct {
	TargetProfitGoal  float64 `mapstructure:"target_profit_goal"`
	AutoTrade         bool    `mapstructure:"auto_trade"`
	DefaultUnderlying string  `mapstructure:"default_underlying"`
}

// CatalogConfig selects the instrument supplier and cache backend.
type CatalogConfig struct {
	Supplier      string `mapstructure:"supplier"`      // "http" or "kite"
	CacheBackend  string `mapstructure:"cache_backend"` // "sqlite", "redis" or "none"
	CachePath     string `mapstructure:"cache_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// MetricsConfig controls the Prometheus endpoint exposed by the watch command.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig mirrors logging.LogConfig in TOML form.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds the Kite Connect key pair used by the kite supplier.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optiondesk"
	}
	return filepath.Join(home, ".config", "optiondesk")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files are
// created from templates and loading continues with the template values.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if cfg.Catalog.CachePath == "" {
		cfg.Catalog.CachePath = filepath.Join(configDir, "catalog.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.ws_base_url", "ws://localhost:8000")
	v.SetDefault("server.timeout", "10s")

	v.SetDefault("streams.ltp_path", "/ws/ltp")
	v.SetDefault("streams.balance_path", "/ws/balance")
	v.SetDefault("streams.index_mode", "split")
	v.SetDefault("streams.nse_index_path", "/ws/nse-candle")
	v.SetDefault("streams.bse_index_path", "/ws/bse-candle")
	v.SetDefault("streams.index_path", "/ws/index")
	v.SetDefault("streams.reconnect_delay", "3s")
	v.SetDefault("streams.ping_interval", "15s")
	v.SetDefault("streams.dial_timeout", "10s")

	v.SetDefault("trading.target_profit_goal", 1000.0)
	v.SetDefault("trading.auto_trade", false)
	v.SetDefault("trading.default_underlying", "NIFTY")

	v.SetDefault("catalog.supplier", "http")
	v.SetDefault("catalog.cache_backend", "sqlite")
	v.SetDefault("catalog.redis_addr", "localhost:6379")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9108")

	logCfg := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logCfg.Level)
	v.SetDefault("logging.console", logCfg.Console)
	v.SetDefault("logging.file", logCfg.File)
	v.SetDefault("logging.file_path", logCfg.FilePath)
	v.SetDefault("logging.max_size", logCfg.MaxSize)
	v.SetDefault("logging.max_backups", logCfg.MaxBackups)
	v.SetDefault("logging.max_age", logCfg.MaxAge)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTIONDESK_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("OPTIONDESK_WS_BASE_URL"); v != "" {
		cfg.Server.WSBaseURL = v
	}
	if v := os.Getenv("OPTIONDESK_REDIS_ADDR"); v != "" {
		cfg.Catalog.RedisAddr = v
	}
	if v := os.Getenv("OPTIONDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid server.base_url %q: %w", c.Server.BaseURL, err)
	}
	if !strings.HasPrefix(c.Server.WSBaseURL, "ws://") && !strings.HasPrefix(c.Server.WSBaseURL, "wss://") {
		return fmt.Errorf("server.ws_base_url must use ws:// or wss://")
	}

	if c.Streams.IndexMode != "split" && c.Streams.IndexMode != "single" {
		return fmt.Errorf("invalid streams.index_mode: %s (must be 'split' or 'single')", c.Streams.IndexMode)
	}
	if c.Streams.ReconnectDelay <= 0 {
		return fmt.Errorf("streams.reconnect_delay must be positive")
	}
	if c.Streams.PingInterval < 0 {
		return fmt.Errorf("streams.ping_interval must be non-negative")
	}

	if c.Trading.TargetProfitGoal <= 0 {
		return fmt.Errorf("trading.target_profit_goal must be positive")
	}
	if _, err := models.ParseUnderlying(c.Trading.DefaultUnderlying); err != nil {
		return fmt.Errorf("trading.default_underlying: %w", err)
	}

	switch c.Catalog.Supplier {
	case "http", "kite":
	default:
		return fmt.Errorf("invalid catalog.supplier: %s (must be 'http' or 'kite')", c.Catalog.Supplier)
	}
	switch c.Catalog.CacheBackend {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("invalid catalog.cache_backend: %s", c.Catalog.CacheBackend)
	}

	return nil
}

// StreamURL joins a stream path onto the websocket base URL.
func (c *Config) StreamURL(path string) string {
	return strings.TrimRight(c.Server.WSBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// IndexURL returns the index feed endpoint for an underlying.
func (c *Config) IndexURL(u models.Underlying) string {
	if c.Streams.IndexMode == "single" {
		return c.StreamURL(c.Streams.IndexPath)
	}
	if u == models.SENSEX {
		return c.StreamURL(c.Streams.BSEIndexPath)
	}
	return c.StreamURL(c.Streams.NSEIndexPath)
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
