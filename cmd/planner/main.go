// Package main is the entry point for the reconfiguration planner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/limiquantix/reconf/internal/config"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/partition"
	"github.com/limiquantix/reconf/internal/planner"
	"github.com/limiquantix/reconf/internal/repository/etcd"
	"github.com/limiquantix/reconf/internal/repository/memory"
	"github.com/limiquantix/reconf/internal/repository/postgres"
	"github.com/limiquantix/reconf/internal/repository/redis"
	"github.com/limiquantix/reconf/internal/scheduler"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println("Reconfiguration Planner")
		fmt.Println("Version:", version)
		fmt.Println("Commit:", commit)
		fmt.Println("Build Date:", buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting reconfiguration planner",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Planner error", zap.Error(err))
	}

	logger.Info("Goodbye!")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	params, err := cfg.Solver.Parameters(cfg.Durations)
	if err != nil {
		return err
	}
	sched := scheduler.New(params, logger)

	var partitioning planner.Partitioner
	if cfg.Partitioning.Enabled {
		policy, err := cfg.Partitioning.MergePolicy()
		if err != nil {
			return err
		}
		p, err := partition.NewFixedNodeSetsPartitioning(cfg.Partitioning.Partitions(),
			partition.WithWorkers(cfg.Partitioning.Workers),
			partition.WithMergePolicy(policy),
			partition.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to configure partitioning: %w", err)
		}
		partitioning = p
	}

	var repo planner.PlanRepository
	switch cfg.Storage.Backend {
	case "", "memory":
		repo = memory.NewPlanRepository()
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = postgres.NewPlanRepository(db, logger)
	default:
		return fmt.Errorf("%w: storage backend %q", domain.ErrInvalidArgument, cfg.Storage.Backend)
	}

	var cache planner.PlanCache
	if cfg.Storage.Cache {
		c, err := redis.NewCache(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	}

	var (
		leader planner.LeaderChecker
		coord  *etcd.Client
	)
	if cfg.Etcd.Enabled {
		coord, err = etcd.NewClient(cfg.Etcd, logger)
		if err != nil {
			return err
		}
		defer coord.Close()
	}

	source := planner.InstanceSourceFunc(func(context.Context) (*domain.Instance, error) {
		return cfg.Cluster.Instance()
	})

	if cfg.Planner.Enabled {
		if coord != nil {
			l := coord.CampaignForLeader(ctx, "planner")
			defer l.Resign(context.Background())
			leader = l
		}
		engine := planner.NewEngine(cfg.Planner, sched, partitioning, repo, cache, leader, logger)
		engine.Start(ctx, source)
		return nil
	}

	// One-shot planning
	if coord != nil {
		lock, err := coord.AcquireLock(ctx, "planner")
		if err != nil {
			return err
		}
		defer lock.Unlock(context.Background())
	}

	inst, err := source.Instance(ctx)
	if err != nil {
		return fmt.Errorf("failed to build instance: %w", err)
	}
	engine := planner.NewEngine(cfg.Planner, sched, partitioning, repo, cache, leader, logger)
	rec, err := engine.Plan(ctx, inst)
	if err != nil {
		return err
	}
	for _, a := range rec.Actions {
		logger.Info("Action", zap.Stringer("action", a))
	}
	return nil
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if cfg.Output != "" {
		zapConfig.OutputPaths = []string{cfg.Output}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}

	return logger
}
