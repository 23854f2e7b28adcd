package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Veirt/weathr/internal/cache"
)

// EnvPrefix prefixes every environment override, e.g. WEATHR_UNITS.
const EnvPrefix = "WEATHR"

// PathEnv overrides the config file location.
const PathEnv = "WEATHR_CONFIG"

// Default location is Berlin.
const (
	DefaultLatitude  = 52.52
	DefaultLongitude = 13.41
)

// Config holds weathr configuration loaded from YAML, .env and the environment.
// Environment variables take precedence over the file.
type Config struct {
	// Path is the file the config was read from and Save writes to.
	Path string `ignored:"true"`

	Latitude     float64 `split_words:"true" validate:"gte=-90,lte=90"`
	Longitude    float64 `split_words:"true" validate:"gte=-180,lte=180"`
	City         string  `split_words:"true"`
	AutoLocation bool    `split_words:"true"`
	HideLocation bool    `split_words:"true"`
	Units        string  `split_words:"true" validate:"oneof=metric imperial"`
	Language     string  `split_words:"true" validate:"required"`

	Provider                     string        `split_words:"true" validate:"oneof=open-meteo met-office metoffice"`
	Supplementary                string        `split_words:"true" validate:"omitempty,oneof=aad none"`
	ProviderTimeout              time.Duration `split_words:"true" validate:"gt=0"`
	MetOfficeAPIKey              string        `split_words:"true"`
	MetOfficeDataSource          string        `split_words:"true"`
	MetOfficeIncludeLocationName bool          `split_words:"true"`

	RefreshInterval time.Duration `split_words:"true" validate:"gt=0"`

	CacheBackend          string        `split_words:"true" validate:"oneof=file memory memcached redis"`
	CacheDir              string        `split_words:"true"`
	MemcachedAddrs        string        `split_words:"true"`
	MemcachedTimeout      time.Duration `split_words:"true"`
	MemcachedMaxIdleConns int           `split_words:"true"`
	RedisAddr             string        `split_words:"true"`
	RedisPassword         string        `split_words:"true"`
	RedisDB               int           `split_words:"true" validate:"gte=0,lte=15"`

	BreakerFailureThreshold int           `split_words:"true" validate:"gte=1"`
	BreakerCoolDown         time.Duration `split_words:"true" validate:"gt=0"`

	ServeAddr        string        `split_words:"true"`
	RefreshRateLimit float64       `split_words:"true" validate:"gt=0"`
	RefreshBurst     int           `split_words:"true" validate:"gte=1"`
	ShutdownTimeout  time.Duration `split_words:"true" validate:"gt=0"`

	LogFile string `split_words:"true"`
}

type fileConfig struct {
	Location struct {
		Latitude  *float64 `yaml:"latitude,omitempty"`
		Longitude *float64 `yaml:"longitude,omitempty"`
		City      string   `yaml:"city,omitempty"`
		Auto      bool     `yaml:"auto,omitempty"`
		Hide      bool     `yaml:"hide,omitempty"`
		Language  string   `yaml:"language,omitempty"`
	} `yaml:"location"`

	Units string `yaml:"units,omitempty"`

	Provider struct {
		Name          string `yaml:"name,omitempty"`
		Supplementary string `yaml:"supplementary,omitempty"`
		Timeout       string `yaml:"timeout,omitempty"`
		MetOffice     struct {
			APIKey              string `yaml:"api_key,omitempty"`
			DataSource          string `yaml:"data_source,omitempty"`
			IncludeLocationName bool   `yaml:"include_location_name,omitempty"`
		} `yaml:"met_office,omitempty"`
	} `yaml:"provider"`

	Refresh struct {
		Interval  string  `yaml:"interval,omitempty"`
		RateLimit float64 `yaml:"rate_limit,omitempty"`
		Burst     int     `yaml:"burst,omitempty"`
	} `yaml:"refresh"`

	Cache struct {
		Backend   string `yaml:"backend,omitempty"`
		Dir       string `yaml:"dir,omitempty"`
		Memcached struct {
			Addrs        string `yaml:"addrs,omitempty"`
			Timeout      string `yaml:"timeout,omitempty"`
			MaxIdleConns int    `yaml:"max_idle_conns,omitempty"`
		} `yaml:"memcached,omitempty"`
		Redis struct {
			Addr     string `yaml:"addr,omitempty"`
			Password string `yaml:"password,omitempty"`
			DB       int    `yaml:"db,omitempty"`
		} `yaml:"redis,omitempty"`
	} `yaml:"cache"`

	Breaker struct {
		FailureThreshold int    `yaml:"failure_threshold,omitempty"`
		CoolDown         string `yaml:"cool_down,omitempty"`
	} `yaml:"breaker"`

	Server struct {
		Addr            string `yaml:"addr,omitempty"`
		ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
	} `yaml:"server"`

	Log struct {
		File string `yaml:"file,omitempty"`
	} `yaml:"log"`
}

// DefaultPath is <user config dir>/weathr/config.yaml, or "" when the platform has none.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return ""
	}
	return filepath.Join(base, "weathr", "config.yaml")
}

// Load reads .env from the working directory, then the config file named by
// WEATHR_CONFIG (default DefaultPath), then WEATHR_* environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(ResolvePath())
}

// ResolvePath is WEATHR_CONFIG when set, else DefaultPath.
func ResolvePath() string {
	if path := strings.TrimSpace(os.Getenv(PathEnv)); path != "" {
		return path
	}
	return DefaultPath()
}

// Default returns the built-in configuration bound to path, ignoring both the
// file and the environment. The CLI falls back to it when Load fails.
func Default(path string) *Config {
	cfg := fromFile(fileConfig{})
	applyDefaults(cfg)
	cfg.Path = path
	return cfg
}

// LoadFile reads configuration from path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromFile(fc)
	cfg.Path = path

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{
		Latitude:     DefaultLatitude,
		Longitude:    DefaultLongitude,
		City:         strings.TrimSpace(fc.Location.City),
		AutoLocation: fc.Location.Auto,
		HideLocation: fc.Location.Hide,
		Language:     fc.Location.Language,
		Units:        strings.ToLower(strings.TrimSpace(fc.Units)),

		Provider:                     strings.ToLower(strings.TrimSpace(fc.Provider.Name)),
		Supplementary:                strings.ToLower(strings.TrimSpace(fc.Provider.Supplementary)),
		ProviderTimeout:              parseDuration(fc.Provider.Timeout, 30*time.Second),
		MetOfficeAPIKey:              fc.Provider.MetOffice.APIKey,
		MetOfficeDataSource:          fc.Provider.MetOffice.DataSource,
		MetOfficeIncludeLocationName: fc.Provider.MetOffice.IncludeLocationName,

		RefreshInterval:  parseDuration(fc.Refresh.Interval, 300*time.Second),
		RefreshRateLimit: fc.Refresh.RateLimit,
		RefreshBurst:     fc.Refresh.Burst,

		CacheBackend:          strings.ToLower(strings.TrimSpace(fc.Cache.Backend)),
		CacheDir:              fc.Cache.Dir,
		MemcachedAddrs:        strings.TrimSpace(fc.Cache.Memcached.Addrs),
		MemcachedTimeout:      parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: fc.Cache.Memcached.MaxIdleConns,
		RedisAddr:             strings.TrimSpace(fc.Cache.Redis.Addr),
		RedisPassword:         fc.Cache.Redis.Password,
		RedisDB:               fc.Cache.Redis.DB,

		BreakerFailureThreshold: fc.Breaker.FailureThreshold,
		BreakerCoolDown:         parseDuration(fc.Breaker.CoolDown, 10*time.Minute),

		ServeAddr:       strings.TrimSpace(fc.Server.Addr),
		ShutdownTimeout: parseDuration(fc.Server.ShutdownTimeout, 5*time.Second),

		LogFile: fc.Log.File,
	}
	if fc.Location.Latitude != nil {
		cfg.Latitude = *fc.Location.Latitude
	}
	if fc.Location.Longitude != nil {
		cfg.Longitude = *fc.Location.Longitude
	}
	return cfg
}

// applyDefaults fills values left empty by both the file and the environment.
func applyDefaults(cfg *Config) {
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Provider == "" {
		cfg.Provider = "open-meteo"
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = cache.DefaultDir()
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	if cfg.MemcachedTimeout <= 0 {
		cfg.MemcachedTimeout = 500 * time.Millisecond
	}
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 3
	}
	if cfg.RefreshRateLimit <= 0 {
		cfg.RefreshRateLimit = 1
	}
	if cfg.RefreshBurst <= 0 {
		cfg.RefreshBurst = 3
	}
	if cfg.LogFile == "" && cfg.CacheDir != "" {
		cfg.LogFile = filepath.Join(cfg.CacheDir, "weathr.log")
	}
}

// Save writes cfg back to cfg.Path as YAML, creating the directory if needed.
func (cfg *Config) Save() error {
	if cfg.Path == "" {
		return errors.New("config: no config path available on this platform")
	}
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg.toFile())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cfg.Path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (cfg *Config) toFile() fileConfig {
	var fc fileConfig
	lat, lon := cfg.Latitude, cfg.Longitude
	fc.Location.Latitude = &lat
	fc.Location.Longitude = &lon
	fc.Location.City = cfg.City
	fc.Location.Auto = cfg.AutoLocation
	fc.Location.Hide = cfg.HideLocation
	fc.Location.Language = cfg.Language
	fc.Units = cfg.Units

	fc.Provider.Name = cfg.Provider
	fc.Provider.Supplementary = cfg.Supplementary
	fc.Provider.Timeout = cfg.ProviderTimeout.String()
	fc.Provider.MetOffice.APIKey = cfg.MetOfficeAPIKey
	fc.Provider.MetOffice.DataSource = cfg.MetOfficeDataSource
	fc.Provider.MetOffice.IncludeLocationName = cfg.MetOfficeIncludeLocationName

	fc.Refresh.Interval = cfg.RefreshInterval.String()
	fc.Refresh.RateLimit = cfg.RefreshRateLimit
	fc.Refresh.Burst = cfg.RefreshBurst

	fc.Cache.Backend = cfg.CacheBackend
	fc.Cache.Dir = cfg.CacheDir
	fc.Cache.Memcached.Addrs = cfg.MemcachedAddrs
	fc.Cache.Memcached.Timeout = cfg.MemcachedTimeout.String()
	fc.Cache.Memcached.MaxIdleConns = cfg.MemcachedMaxIdleConns
	fc.Cache.Redis.Addr = cfg.RedisAddr
	fc.Cache.Redis.Password = cfg.RedisPassword
	fc.Cache.Redis.DB = cfg.RedisDB

	fc.Breaker.FailureThreshold = cfg.BreakerFailureThreshold
	fc.Breaker.CoolDown = cfg.BreakerCoolDown.String()

	fc.Server.Addr = cfg.ServeAddr
	fc.Server.ShutdownTimeout = cfg.ShutdownTimeout.String()
	fc.Log.File = cfg.LogFile
	return fc
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// A bare number is read as seconds.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if d, err := time.ParseDuration(s + "s"); err == nil {
		return d
	}
	return defaultVal
}

var structValidator = validator.New()

// validate checks ranges and enumerations and reports every failing field.
func validate(cfg *Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid values: %s", strings.Join(msgs, "; "))
}
