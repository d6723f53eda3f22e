package config

import (
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration shared by the terminal client, the
// server and the CLI.
type Config struct {
	Client  Client  `yaml:"client"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Sources Sources `yaml:"sources"`
	Logging Logging `yaml:"logging"`
}

// Client configures the terminal dashboard.
type Client struct {
	APIURL         string        `yaml:"api_url" default:"http://localhost:8000" validate:"required,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s" validate:"gt=0"`
	Debounce       time.Duration `yaml:"debounce" default:"300ms" validate:"gt=0"`
	PollInterval   time.Duration `yaml:"poll_interval" default:"1s" validate:"gt=0"`
	ProbeInterval  time.Duration `yaml:"probe_interval" default:"2s" validate:"gt=0"`
	BannerTTL      time.Duration `yaml:"banner_ttl" default:"5s" validate:"gt=0"`
	AlertCooldown  time.Duration `yaml:"alert_cooldown" default:"5m" validate:"gt=0"`
	LendingRefresh time.Duration `yaml:"lending_refresh" default:"60s" validate:"gt=0"`
	HistorySize    int           `yaml:"history_size" default:"50" validate:"gt=0"`
	NotifyCommand  string        `yaml:"notify_command" default:"notify-send"`
	LogDir         string        `yaml:"log_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string   `yaml:"host" default:"0.0.0.0"`
	Port     int      `yaml:"port" default:"8000" validate:"gt=0,lte=65535"`
	GRPCPort int      `yaml:"grpc_port" default:"9090" validate:"gt=0,lte=65535"`
	Origins  []string `yaml:"cors_origins"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" default:"data" validate:"required"`
	SQLitePath string `yaml:"sqlite_path" default:"data/catalog.db" validate:"required"`
}

// Sources configures the upstream market-data providers used by the
// refresh job and the price endpoint.
type Sources struct {
	Binance   Binance   `yaml:"binance"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	CoinGecko CoinGecko `yaml:"coingecko"`
	Lending   Lending   `yaml:"lending"`
}

// Binance holds optional credentials; public endpoints work without them.
type Binance struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	Quote     string `yaml:"quote_asset" default:"USDC" validate:"required"`
}

// Alpaca holds credentials for the crypto market-data fallback.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// CoinGecko configures the public CoinGecko API.
type CoinGecko struct {
	BaseURL         string `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"required,url"`
	APIKey          string `yaml:"api_key"`
	PerPage         int    `yaml:"per_page" default:"250" validate:"gt=0,lte=250"`
	MaxPages        int    `yaml:"max_pages" default:"12" validate:"gt=0"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" default:"10" validate:"gt=0"`
	MaxRetries      int    `yaml:"max_retries" default:"3" validate:"gte=0"`
}

// Lending configures the lending-position source.
type Lending struct {
	URL           string        `yaml:"url" validate:"omitempty,url"`
	Timeout       time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
	CriticalBelow float64       `yaml:"critical_below" default:"1.1" validate:"gt=0"`
	RiskyBelow    float64       `yaml:"risky_below" default:"1.5" validate:"gtefield=CriticalBelow"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a configuration built from defaults and the environment
// only.
func Default() (*Config, error) {
	return finish(&Config{})
}

// Load reads the YAML configuration file at the given path, fills unset
// fields with defaults, applies environment variable overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return finish(cfg)
}

// LoadOrDefault loads path when it is non-empty and falls back to Default
// otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

func finish(cfg *Config) (*Config, error) {
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "applying config defaults")
	}
	applyEnvOverrides(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRYPTODASH_API_URL"); v != "" {
		cfg.Client.APIURL = v
	}
	if v := os.Getenv("CRYPTODASH_NOTIFY_COMMAND"); v != "" {
		cfg.Client.NotifyCommand = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Sources.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Sources.Binance.APISecret = v
	}

	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Sources.CoinGecko.APIKey = v
	}

	if v := os.Getenv("LENDING_API_URL"); v != "" {
		cfg.Sources.Lending.URL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Sources.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Sources.Alpaca.APISecret = v
	}
}
