// Package config handles configuration loading for jpxetf.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "JPXETF"

// CodePlaceholder is substituted with the security code in provider URL templates.
const CodePlaceholder = "{code}"

// Default provider endpoints.
const (
	DefaultICEURL       = "https://inav.ice.com/pcf-download/{code}.csv"
	DefaultSolactiveURL = "https://www.solactive.com/downloads/etfservices/tse-pcf/single/{code}.csv"
	DefaultFeeURL       = "https://www.jpx.co.jp/equities/products/etfs/issues/01.html"
	DefaultMasterURL    = "https://www.jpx.co.jp/markets/statistics-equities/misc/tvdivq0000001vg2-att/data_j.xls"
	DefaultMarketURL    = "https://www.rakuten-sec.co.jp/web/market/search/etf_search/ETFD.csv"
)

// Config represents the complete application configuration.
type Config struct {
	PCF     PCFConfig     `mapstructure:"pcf"     json:"pcf" yaml:"pcf"`
	Sources SourcesConfig `mapstructure:"sources" json:"sources" yaml:"sources"`
	Cache   CacheConfig   `mapstructure:"cache"   json:"cache" yaml:"cache"`
	Lang    string        `mapstructure:"lang"    json:"lang" yaml:"lang"` // "ja" or "en"
	API     APIConfig     `mapstructure:"api"     json:"api" yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging" yaml:"logging"`
}

// PCFConfig holds the constituent-file provider settings.
type PCFConfig struct {
	ProviderURLs []string      `mapstructure:"provider_urls" json:"provider_urls" yaml:"provider_urls"` // tried in order
	Timeout      time.Duration `mapstructure:"timeout"       json:"timeout" yaml:"timeout"`
	RequestDelay time.Duration `mapstructure:"request_delay" json:"request_delay" yaml:"request_delay"` // before 2nd and later attempts
}

// SourcesConfig holds the side-data endpoints.
type SourcesConfig struct {
	FeeURL    string        `mapstructure:"fee_url"    json:"fee_url" yaml:"fee_url"`
	MasterURL string        `mapstructure:"master_url" json:"master_url" yaml:"master_url"`
	MarketURL string        `mapstructure:"market_url" json:"market_url" yaml:"market_url"`
	Timeout   time.Duration `mapstructure:"timeout"    json:"timeout" yaml:"timeout"`
}

// CacheConfig holds snapshot location and per-source TTLs.
type CacheConfig struct {
	Dir       string        `mapstructure:"dir"        json:"dir" yaml:"dir"`
	MarketTTL time.Duration `mapstructure:"market_ttl" json:"market_ttl" yaml:"market_ttl"`
	FeeTTL    time.Duration `mapstructure:"fee_ttl"    json:"fee_ttl" yaml:"fee_ttl"`
	MasterTTL time.Duration `mapstructure:"master_ttl" json:"master_ttl" yaml:"master_ttl"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         json:"host" yaml:"host"`
	Port        int      `mapstructure:"port"         json:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins" yaml:"cors_origins"`
}

// Addr returns host:port for net/http.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  json:"level" yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" json:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.jpxetf/config.yaml (home directory)
//  3. /etc/jpxetf/config.yaml (system)
//
// Environment variables override config file values.
// Format: JPXETF_<SECTION>_<KEY>, e.g., JPXETF_PCF_REQUEST_DELAY
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".jpxetf"))
	v.AddConfigPath("/etc/jpxetf")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// PCF providers
	v.SetDefault("pcf.provider_urls", []string{DefaultICEURL, DefaultSolactiveURL})
	v.SetDefault("pcf.timeout", 30*time.Second)
	v.SetDefault("pcf.request_delay", time.Duration(0))

	// Side-data sources
	v.SetDefault("sources.fee_url", DefaultFeeURL)
	v.SetDefault("sources.master_url", DefaultMasterURL)
	v.SetDefault("sources.market_url", DefaultMarketURL)
	v.SetDefault("sources.timeout", 30*time.Second)

	// Snapshot cache
	v.SetDefault("cache.dir", filepath.Join("~", ".cache", "jpxetf"))
	v.SetDefault("cache.market_ttl", 24*time.Hour)
	v.SetDefault("cache.fee_ttl", 7*24*time.Hour)
	v.SetDefault("cache.master_ttl", 7*24*time.Hour)

	v.SetDefault("lang", "ja")

	// API defaults
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv reads list-valued keys that AutomaticEnv cannot split.
// JPXETF_PCF_PROVIDER_URLS is a comma-separated list of templates.
func overrideFromEnv(cfg *Config) {
	if raw := os.Getenv(EnvPrefix + "_PCF_PROVIDER_URLS"); raw != "" {
		cfg.PCF.ProviderURLs = splitList(raw)
	}
	if raw := os.Getenv(EnvPrefix + "_API_CORS_ORIGINS"); raw != "" {
		cfg.API.CORSOrigins = splitList(raw)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings that would make every request fail.
func (c *Config) Validate() error {
	switch c.Lang {
	case "ja", "en":
	default:
		return fmt.Errorf("lang must be \"ja\" or \"en\", got %q", c.Lang)
	}
	for _, tmpl := range c.PCF.ProviderURLs {
		if !strings.Contains(tmpl, CodePlaceholder) {
			return fmt.Errorf("pcf.provider_urls: template %q has no %s placeholder", tmpl, CodePlaceholder)
		}
	}
	durations := map[string]time.Duration{
		"pcf.timeout":       c.PCF.Timeout,
		"pcf.request_delay": c.PCF.RequestDelay,
		"sources.timeout":   c.Sources.Timeout,
		"cache.market_ttl":  c.Cache.MarketTTL,
		"cache.fee_ttl":     c.Cache.FeeTTL,
		"cache.master_ttl":  c.Cache.MasterTTL,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", key, d)
		}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	return nil
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
