// Package config loads server and CLI settings from the environment, an
// optional .env.local file and an optional YAML file named by CONFIG_FILE.
// Environment variables win over the YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultPort             = "5050"
	DefaultDataset          = "data/zcta520.geojson.gz"
	DefaultDownloadTimeout  = 30 * time.Second
	DefaultSyncTimeout      = 10 * time.Second
	DefaultSyncThrottle     = time.Second
	DefaultSyncRatePerMin   = 30
	DefaultSyncBurst        = 5
	DefaultCoverageCacheTTL = 10 * time.Minute
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingDataset     = errors.New("ZCTA_DATASET is required")
	ErrBadMatchMode       = errors.New("MATCH_MODE must be centroid or intersection")
	ErrBadOverlapRatio    = errors.New("MIN_OVERLAP_RATIO must be between 0 and 1")
	ErrBadDuration        = errors.New("timeouts and throttle delay must be positive")
	ErrBadRateLimit       = errors.New("SYNC_RATE_PER_MIN and SYNC_BURST must be positive")
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	// RedisURL enables the coverage cache when set.
	RedisURL string `yaml:"redis_url"`

	ZCTADataset         string        `yaml:"zcta_dataset"`
	ZCTAPreload         bool          `yaml:"zcta_preload"`
	ZCTADownloadTimeout time.Duration `yaml:"zcta_download_timeout"`
	MatchMode           string        `yaml:"match_mode"`
	MinOverlapRatio     float64       `yaml:"min_overlap_ratio"`

	SyncTimeout    time.Duration `yaml:"sync_timeout"`
	SyncThrottle   time.Duration `yaml:"sync_throttle"`
	SyncRatePerMin int           `yaml:"sync_rate_per_min"`
	SyncBurst      int           `yaml:"sync_burst"`

	CoverageCacheTTL time.Duration `yaml:"coverage_cache_ttl"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	// GoogleMapsAPIKey enables coverage lookups by address.
	GoogleMapsAPIKey string `yaml:"google_maps_api_key"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Defaults() Config {
	return Config{
		Port:                DefaultPort,
		ZCTADataset:         DefaultDataset,
		ZCTAPreload:         true,
		ZCTADownloadTimeout: DefaultDownloadTimeout,
		MatchMode:           "centroid",
		SyncTimeout:         DefaultSyncTimeout,
		SyncThrottle:        DefaultSyncThrottle,
		SyncRatePerMin:      DefaultSyncRatePerMin,
		SyncBurst:           DefaultSyncBurst,
		CoverageCacheTTL:    DefaultCoverageCacheTTL,
		AllowedOrigins:      []string{"http://localhost:5173", "http://localhost:5174"},
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Load reads .env.local if present, then CONFIG_FILE, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields whose variable is set and non-empty.
//
// Environment variables:
//   - PORT, DATABASE_URL, REDIS_URL
//   - ZCTA_DATASET: URL or local path, ".gz" is decompressed
//   - ZCTA_PRELOAD: load the dataset at startup (default true)
//   - ZCTA_DOWNLOAD_TIMEOUT, SYNC_TIMEOUT, SYNC_THROTTLE, COVERAGE_CACHE_TTL: Go durations
//   - MATCH_MODE: centroid or intersection; MIN_OVERLAP_RATIO: 0..1
//   - SYNC_RATE_PER_MIN, SYNC_BURST: per-user limit on POST /service-areas/sync
//   - ALLOWED_ORIGINS: comma separated CORS allow-list
//   - LOG_LEVEL, LOG_FORMAT
//   - GOOGLE_MAPS_API_KEY: optional, enables GET /coverage?address=
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("ZCTA_DATASET", &c.ZCTADataset)
	str("MATCH_MODE", &c.MatchMode)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("GOOGLE_MAPS_API_KEY", &c.GoogleMapsAPIKey)
	dur("ZCTA_DOWNLOAD_TIMEOUT", &c.ZCTADownloadTimeout)
	dur("SYNC_TIMEOUT", &c.SyncTimeout)
	dur("SYNC_THROTTLE", &c.SyncThrottle)
	dur("COVERAGE_CACHE_TTL", &c.CoverageCacheTTL)
	num("SYNC_RATE_PER_MIN", &c.SyncRatePerMin)
	num("SYNC_BURST", &c.SyncBurst)

	if v := strings.TrimSpace(getenv("ZCTA_PRELOAD")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ZCTA_PRELOAD: %w", err))
		} else {
			c.ZCTAPreload = b
		}
	}
	if v := strings.TrimSpace(getenv("MIN_OVERLAP_RATIO")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MIN_OVERLAP_RATIO: %w", err))
		} else {
			c.MinOverlapRatio = f
		}
	}
	if v := strings.TrimSpace(getenv("ALLOWED_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}
	return errors.Join(errs...)
}

// ValidateMatch checks a zip matching mode and its overlap ratio. An empty
// mode means centroid.
func ValidateMatch(mode string, minOverlap float64) error {
	switch mode {
	case "", "centroid", "intersection":
	default:
		return ErrBadMatchMode
	}
	if minOverlap < 0 || minOverlap > 1 {
		return ErrBadOverlapRatio
	}
	return nil
}

// Validate checks the settings the HTTP server needs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.ZCTADataset == "" {
		return ErrMissingDataset
	}
	if err := ValidateMatch(c.MatchMode, c.MinOverlapRatio); err != nil {
		return err
	}
	if c.ZCTADownloadTimeout <= 0 || c.SyncTimeout <= 0 || c.SyncThrottle <= 0 {
		return ErrBadDuration
	}
	if c.SyncRatePerMin <= 0 || c.SyncBurst <= 0 {
		return ErrBadRateLimit
	}
	return nil
}
