// Package config loads search and service settings. Values come from
// defaults, then an optional YAML or TOML file, then a .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"vrpspd/internal/oracle"
)

type Search struct {
	TimeBudget          time.Duration `yaml:"time_budget" toml:"time_budget"`
	SubproblemBudget    time.Duration `yaml:"subproblem_budget" toml:"subproblem_budget"`
	Executions          int           `yaml:"executions" toml:"executions"`
	Oracle              string        `yaml:"oracle" toml:"oracle"`
	Seed                int64         `yaml:"seed" toml:"seed"`
	MaxRounds           int           `yaml:"max_rounds" toml:"max_rounds"`
	NearestNeighborProb float64       `yaml:"nearest_neighbor_prob" toml:"nearest_neighbor_prob"`
}

type Server struct {
	Port      string  `yaml:"port" toml:"port"`
	RateRPS   float64 `yaml:"rate_rps" toml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`
}

type Storage struct {
	DatabaseURL string `yaml:"database_url" toml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	RedisURL    string `yaml:"redis_url" toml:"redis_url"`
}

type Snapshots struct {
	Queue         int    `yaml:"queue" toml:"queue"`
	Workers       int    `yaml:"workers" toml:"workers"`
	WebhookURL    string `yaml:"webhook_url" toml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret" toml:"webhook_secret"`
}

type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type Config struct {
	Search      Search    `yaml:"search" toml:"search"`
	InstanceDir string    `yaml:"instance_dir" toml:"instance_dir"`
	OutputDir   string    `yaml:"output_dir" toml:"output_dir"`
	Server      Server    `yaml:"server" toml:"server"`
	Storage     Storage   `yaml:"storage" toml:"storage"`
	Snapshots   Snapshots `yaml:"snapshots" toml:"snapshots"`
	Log         Logging   `yaml:"log" toml:"log"`
}

func Default() Config {
	return Config{
		Search: Search{
			TimeBudget:          60 * time.Second,
			SubproblemBudget:    5 * time.Second,
			Executions:          1,
			Oracle:              oracle.NameSearch,
			NearestNeighborProb: 0.99,
		},
		InstanceDir: "instances",
		OutputDir:   "out",
		Server:      Server{Port: "8080", RateRPS: 2, RateBurst: 4},
		Snapshots:   Snapshots{Queue: 256, Workers: 4},
		Log:         Logging{Level: "info", Format: "text"},
	}
}

var ErrInvalid = errors.New("invalid config")

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file %s", ErrInvalid, path)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	dur("VDNS_TIME_BUDGET", &cfg.Search.TimeBudget)
	dur("VDNS_SUBPROBLEM_BUDGET", &cfg.Search.SubproblemBudget)
	num("VDNS_EXECUTIONS", &cfg.Search.Executions)
	num("VDNS_MAX_ROUNDS", &cfg.Search.MaxRounds)
	str("VDNS_ORACLE", &cfg.Search.Oracle)
	if v, ok := lookup("VDNS_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("VDNS_SEED: %w", err))
		} else {
			cfg.Search.Seed = seed
		}
	}
	str("VDNS_INSTANCE_DIR", &cfg.InstanceDir)
	str("VDNS_OUTPUT_DIR", &cfg.OutputDir)
	str("PORT", &cfg.Server.Port)
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_RPS: %w", err))
		} else {
			cfg.Server.RateRPS = f
		}
	}
	num("RATE_BURST", &cfg.Server.RateBurst)
	str("DATABASE_URL", &cfg.Storage.DatabaseURL)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("REDIS_URL", &cfg.Storage.RedisURL)
	num("SNAPSHOT_QUEUE", &cfg.Snapshots.Queue)
	num("SNAPSHOT_WORKERS", &cfg.Snapshots.Workers)
	str("SNAPSHOT_WEBHOOK_URL", &cfg.Snapshots.WebhookURL)
	str("SNAPSHOT_WEBHOOK_SECRET", &cfg.Snapshots.WebhookSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	return errors.Join(errs...)
}

// Validate rejects settings the search cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Search.TimeBudget <= 0 {
		errs = append(errs, errors.New("time budget must be positive"))
	}
	if c.Search.SubproblemBudget <= 0 {
		errs = append(errs, errors.New("subproblem budget must be positive"))
	}
	if c.Search.Executions < 1 {
		errs = append(errs, errors.New("executions must be at least 1"))
	}
	if c.Search.MaxRounds < 0 {
		errs = append(errs, errors.New("max rounds must not be negative"))
	}
	if p := c.Search.NearestNeighborProb; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("nearest neighbor probability %v outside [0,1]", p))
	}
	if !oracle.Valid(c.Search.Oracle) {
		errs = append(errs, fmt.Errorf("unknown oracle %q", c.Search.Oracle))
	}
	if c.Snapshots.Queue < 1 || c.Snapshots.Workers < 1 {
		errs = append(errs, errors.New("snapshot queue and workers must be positive"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log format %q is not text or json", f))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// NewLogger builds a logrus logger for the logging settings.
func (l Logging) NewLogger() *log.Logger {
	logger := log.New()
	if lvl, err := log.ParseLevel(l.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if l.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}
