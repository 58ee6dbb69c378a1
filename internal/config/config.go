package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the forecast engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Forecast     ForecastConfig     `yaml:"forecast"`
	Optimization OptimizationConfig `yaml:"optimization"`
	Advisory     AdvisoryConfig     `yaml:"advisory"`
	Logging      LoggingConfig      `yaml:"logging"`
	Cache        CacheConfig        `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gte=0"`
}

// StoreConfig selects where observations come from: a local CSV/XLSX file or
// an upstream HTTP data service.
type StoreConfig struct {
	Kind             string        `yaml:"kind" validate:"oneof=file http"`
	Path             string        `yaml:"path" validate:"required_if=Kind file"`
	Sheet            string        `yaml:"sheet"`
	Watch            bool          `yaml:"watch"`
	BaseURL          string        `yaml:"baseURL" validate:"required_if=Kind http,omitempty,url"`
	ObservationsPath string        `yaml:"observationsPath"`
	Dataset          string        `yaml:"dataset"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	CacheTTL         time.Duration `yaml:"cacheTTL" validate:"gte=0"`
}

// ForecastConfig holds forecasting defaults.
type ForecastConfig struct {
	SeasonalPeriod int    `yaml:"seasonalPeriod" validate:"gte=0,lte=366"`
	Horizon        int    `yaml:"horizon" validate:"gte=1,lte=520"`
	ModelsPath     string `yaml:"modelsPath"`
}

// OptimizationConfig tunes the background optimiser.
type OptimizationConfig struct {
	Interval        time.Duration `yaml:"interval" validate:"gt=0"`
	MaxConcurrency  int           `yaml:"maxConcurrency" validate:"gte=1,lte=256"`
	JobTimeout      time.Duration `yaml:"jobTimeout" validate:"gt=0"`
	MaxFolds        int           `yaml:"maxFolds" validate:"gte=1,lte=12"`
	SelectionPolicy string        `yaml:"selectionPolicy" validate:"oneof=priority expected-accuracy"`
}

// AdvisoryConfig configures the optional language-model advisor.
type AdvisoryConfig struct {
	Enabled           bool          `yaml:"enabled"`
	APIKey            string        `yaml:"apiKey"`
	BaseURL           string        `yaml:"baseURL" validate:"omitempty,url"`
	Model             string        `yaml:"model"`
	BusinessContext   string        `yaml:"businessContext"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	FailureThreshold  uint32        `yaml:"failureThreshold"`
	OpenTimeout       time.Duration `yaml:"openTimeout" validate:"gte=0"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig selects where the optimisation cache snapshot is persisted.
type CacheConfig struct {
	Backend         string        `yaml:"backend" validate:"oneof=none memory valkey badger"`
	Addr            string        `yaml:"addr" validate:"required_if=Backend valkey"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db" validate:"gte=0"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	TLS             bool          `yaml:"tls"`
	BadgerPath      string        `yaml:"badgerPath" validate:"required_if=Backend badger"`
	PersistInterval time.Duration `yaml:"persistInterval" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_FORECAST_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Kind:             "file",
			Path:             "data/observations.csv",
			ObservationsPath: "/api/v1/observations",
			Timeout:          5 * time.Second,
			CacheTTL:         time.Minute,
		},
		Forecast: ForecastConfig{
			SeasonalPeriod: 12,
			Horizon:        6,
			ModelsPath:     "configs/models.yaml",
		},
		Optimization: OptimizationConfig{
			Interval:        30 * time.Second,
			MaxConcurrency:  4,
			JobTimeout:      2 * time.Minute,
			MaxFolds:        3,
			SelectionPolicy: "priority",
		},
		Advisory: AdvisoryConfig{
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 1,
			Burst:             5,
			FailureThreshold:  3,
			OpenTimeout:       time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Backend:         "memory",
			DialTimeout:     2 * time.Second,
			ReadTimeout:     500 * time.Millisecond,
			WriteTimeout:    500 * time.Millisecond,
			MaxRetries:      2,
			PersistInterval: time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_FORECAST_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_STORE_KIND"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_STORE_WATCH"); v != "" {
		cfg.Store.Watch = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_FORECAST_STORE_BASE_URL"); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_STORE_DATASET"); v != "" {
		cfg.Store.Dataset = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_SEASONAL_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.SeasonalPeriod = n
		}
	}
	if v := os.Getenv("MIRADOR_FORECAST_HORIZON"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.Horizon = n
		}
	}
	if v := os.Getenv("MIRADOR_FORECAST_MODELS_PATH"); v != "" {
		cfg.Forecast.ModelsPath = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_OPTIMIZE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Optimization.Interval = d
		}
	}
	if v := os.Getenv("MIRADOR_FORECAST_OPTIMIZE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimization.MaxConcurrency = n
		}
	}
	if v := os.Getenv("MIRADOR_FORECAST_SELECTION_POLICY"); v != "" {
		cfg.Optimization.SelectionPolicy = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_ADVISORY_ENABLED"); v != "" {
		cfg.Advisory.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_FORECAST_ADVISORY_API_KEY"); v != "" {
		cfg.Advisory.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Advisory.APIKey == "" {
		cfg.Advisory.APIKey = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_ADVISORY_BASE_URL"); v != "" {
		cfg.Advisory.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_ADVISORY_MODEL"); v != "" {
		cfg.Advisory.Model = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_BADGER_PATH"); v != "" {
		cfg.Cache.BadgerPath = v
	}
	if v := os.Getenv("MIRADOR_FORECAST_CACHE_PERSIST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.PersistInterval = d
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
