package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/graph"
	"tidbyt.dev/transit/planner"
	"tidbyt.dev/transit/storage"
)

const EnvPrefix = "TRANSIT_"

type StaticConfig struct {
	URL             string            `yaml:"url" validate:"omitempty,url"`
	Headers         map[string]string `yaml:"headers"`
	RefreshInterval time.Duration     `yaml:"refresh_interval" validate:"gte=0"`
	Timeout         time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxSizeMB       int               `yaml:"max_size_mb" validate:"gte=0"`
}

type RealtimeConfig struct {
	URLs            []string          `yaml:"urls" validate:"dive,url"`
	Headers         map[string]string `yaml:"headers"`
	RefreshInterval time.Duration     `yaml:"refresh_interval" validate:"gte=0"`
	TTL             time.Duration     `yaml:"ttl" validate:"gte=0"`
	Timeout         time.Duration     `yaml:"timeout" validate:"gte=0"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	Directory   string `yaml:"directory"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

type GraphConfig struct {
	WalkRadiusKm           float64 `yaml:"walk_radius_km" validate:"gte=0"`
	MaxNeighbors           int     `yaml:"max_neighbors" validate:"gte=0"`
	DefaultTransferSeconds int32   `yaml:"default_transfer_seconds" validate:"gte=0"`
}

type PlannerConfig struct {
	MaxTransfers   int           `yaml:"max_transfers" validate:"gte=0"`
	MaxWalkKm      float64       `yaml:"max_walk_km" validate:"gte=0"`
	WalkSpeedKmh   float64       `yaml:"walk_speed_kmh" validate:"gt=0"`
	Results        int           `yaml:"results" validate:"gt=0"`
	MaxExpansions  int           `yaml:"max_expansions" validate:"gt=0"`
	CruiseSpeedKmh float64       `yaml:"cruise_speed_kmh" validate:"gt=0"`
	QueryTimeout   time.Duration `yaml:"query_timeout" validate:"gte=0"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type Config struct {
	Static   StaticConfig   `yaml:"static"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Graph    GraphConfig    `yaml:"graph"`
	Planner  PlannerConfig  `yaml:"planner"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Static: StaticConfig{
			RefreshInterval: transit.DefaultStaticRefreshInterval,
			Timeout:         transit.DefaultStaticTimeout,
			MaxSizeMB:       transit.DefaultStaticMaxSize >> 20,
		},
		Realtime: RealtimeConfig{
			RefreshInterval: transit.DefaultRealtimeRefreshInterval,
			TTL:             transit.DefaultRealtimeTTL,
			Timeout:         transit.DefaultRealtimeTimeout,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Graph: GraphConfig{
			WalkRadiusKm:           graph.DefaultWalkRadiusKm,
			MaxNeighbors:           graph.DefaultMaxNeighbors,
			DefaultTransferSeconds: graph.DefaultTransferSeconds,
		},
		Planner: PlannerConfig{
			MaxTransfers:   planner.DefaultMaxTransfers,
			MaxWalkKm:      planner.DefaultMaxWalkKm,
			WalkSpeedKmh:   planner.DefaultWalkSpeedKmh,
			Results:        planner.DefaultResults,
			MaxExpansions:  planner.DefaultMaxExpansions,
			CruiseSpeedKmh: planner.DefaultCruiseSpeedKmh,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Loads configuration from a YAML file on top of the defaults, then
// applies TRANSIT_* environment variables. A .env file in the working
// directory is loaded first, if present. An empty path skips the
// YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("STATIC_URL", &c.Static.URL)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_DIRECTORY", &c.Storage.Directory)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "REALTIME_URLS"); ok {
		c.Realtime.URLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Realtime.URLs = append(c.Realtime.URLs, u)
			}
		}
	}

	// Typically an API key
	if v, ok := lookup(EnvPrefix + "REALTIME_API_KEY"); ok {
		if c.Realtime.Headers == nil {
			c.Realtime.Headers = map[string]string{}
		}
		c.Realtime.Headers["x-api-key"] = v
	}

	return errors.Join(
		dur("STATIC_REFRESH_INTERVAL", &c.Static.RefreshInterval),
		dur("REALTIME_REFRESH_INTERVAL", &c.Realtime.RefreshInterval),
		dur("QUERY_TIMEOUT", &c.Planner.QueryTimeout),
		num("MAX_TRANSFERS", &c.Planner.MaxTransfers),
		num("RESULTS", &c.Planner.Results),
	)
}

func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c *Config) BuildOptions() transit.BuildOptions {
	opts := transit.DefaultBuildOptions()
	opts.Graph = graph.Options{
		WalkRadiusKm:           c.Graph.WalkRadiusKm,
		MaxNeighbors:           c.Graph.MaxNeighbors,
		DefaultTransferSeconds: c.Graph.DefaultTransferSeconds,
	}
	opts.Planner.Heuristic = planner.CruiseHeuristic{SpeedKmh: c.Planner.CruiseSpeedKmh}
	return opts
}

func (c *Config) Constraints() planner.Constraints {
	constraints := planner.DefaultConstraints()
	constraints.MaxTransfers = c.Planner.MaxTransfers
	constraints.MaxWalkKm = c.Planner.MaxWalkKm
	constraints.WalkSpeedKmh = c.Planner.WalkSpeedKmh
	constraints.Results = c.Planner.Results
	constraints.MaxExpansions = c.Planner.MaxExpansions
	return constraints
}

func (c *Config) OpenStorage() (storage.Storage, error) {
	switch c.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    c.Storage.Directory != "",
			Directory: c.Storage.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(c.Storage.PostgresDSN, false)
	case "memory", "":
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", c.Storage.Backend)
}

// Creates a Manager wired according to the configuration.
func (c *Config) NewManager(s storage.Storage) *transit.Manager {
	m := transit.NewManager(s)
	m.StaticURL = c.Static.URL
	m.StaticHeaders = c.Static.Headers
	m.StaticRefreshInterval = c.Static.RefreshInterval
	m.StaticTimeout = c.Static.Timeout
	m.StaticMaxSize = c.Static.MaxSizeMB << 20
	m.RealtimeURLs = c.Realtime.URLs
	m.RealtimeHeaders = c.Realtime.Headers
	m.RealtimeRefreshInterval = c.Realtime.RefreshInterval
	m.RealtimeTTL = c.Realtime.TTL
	m.RealtimeTimeout = c.Realtime.Timeout
	m.QueryTimeout = c.Planner.QueryTimeout
	m.BuildOptions = c.BuildOptions()
	return m
}
