// Package config provides configuration management for the reconfiguration planner.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/partition"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/scheduler"
)

// Config holds all configuration for the application.
type Config struct {
	Solver       SolverConfig       `mapstructure:"solver"`
	Durations    map[string]int     `mapstructure:"durations"`
	Partitioning PartitioningConfig `mapstructure:"partitioning"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Etcd         EtcdConfig         `mapstructure:"etcd"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Planner      PlannerConfig      `mapstructure:"planner"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Cluster      ClusterConfig      `mapstructure:"cluster"`
}

// SolverConfig holds the resolution settings.
type SolverConfig struct {
	TimeLimit time.Duration `mapstructure:"time_limit"`
	Optimize  bool          `mapstructure:"optimize"`
	MaxEnd    int           `mapstructure:"max_end"`
	Repair    bool          `mapstructure:"repair"`
}

// Parameters converts the solver settings and the per-kind constant
// durations into scheduler parameters. Kinds missing from durations keep
// a duration of 1.
func (c SolverConfig) Parameters(durations map[string]int) (scheduler.Parameters, error) {
	ps := scheduler.DefaultParameters()
	ps.TimeLimit = c.TimeLimit
	ps.Optimize = c.Optimize
	ps.MaxEnd = c.MaxEnd
	ps.Repair = c.Repair
	for name, d := range durations {
		kind, err := plan.ParseActionKind(name)
		if err != nil {
			return ps, fmt.Errorf("invalid duration entry: %w", err)
		}
		if d < 0 {
			return ps, fmt.Errorf("%w: negative duration for %s", domain.ErrInvalidArgument, name)
		}
		ps.Durations.Register(kind, scheduler.ConstantDuration{Duration: d})
	}
	return ps, nil
}

// PartitioningConfig holds the instance splitting settings.
type PartitioningConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Workers  int     `mapstructure:"workers"`
	Merge    string  `mapstructure:"merge"`
	NodeSets [][]int `mapstructure:"node_sets"`
}

// Partitions returns the node sets.
func (c PartitioningConfig) Partitions() [][]domain.Node {
	out := make([][]domain.Node, len(c.NodeSets))
	for i, set := range c.NodeSets {
		out[i] = toNodes(set)
	}
	return out
}

// MergePolicy parses the merge policy.
func (c PartitioningConfig) MergePolicy() (partition.MergePolicy, error) {
	return partition.ParseMergePolicy(c.Merge)
}

// StorageConfig selects where plan records are kept.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	// Cache enables the Redis plan cache.
	Cache bool `mapstructure:"cache"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by migrations.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// EtcdConfig holds etcd configuration.
type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Address returns the Redis address string.
func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PlannerConfig holds the periodic planning loop configuration.
type PlannerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// Retention is how long plan records are kept.
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("RECONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Planner.Interval <= 0 {
		return fmt.Errorf("%w: planner.interval must be positive, got %s", domain.ErrInvalidArgument, c.Planner.Interval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Solver
	v.SetDefault("solver.time_limit", "30s")
	v.SetDefault("solver.optimize", false)
	v.SetDefault("solver.max_end", 0)
	v.SetDefault("solver.repair", false)

	// Partitioning
	v.SetDefault("partitioning.enabled", false)
	v.SetDefault("partitioning.workers", 4)
	v.SetDefault("partitioning.merge", "concurrent")

	// Storage
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.cache", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "reconf")
	v.SetDefault("database.user", "reconf")
	v.SetDefault("database.password", "reconf")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// etcd
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "1h")

	// Planner
	v.SetDefault("planner.enabled", false)
	v.SetDefault("planner.interval", "5m")
	v.SetDefault("planner.retention", "168h")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}
