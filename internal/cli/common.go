// Package cli implements the dispatchctl operator commands.
package cli

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/config"
	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/notify/redisnotify"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

const defaultDBPath = "./data/guard-dispatch.db"

// AddPersistentFlags registers the flags every command shares.
func AddPersistentFlags(root *cobra.Command) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	root.PersistentFlags().String("db", dbPath, "path to the dispatch database")
}

func openStore(cmd *cobra.Command) (*repository.SQLiteDB, error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	return repository.NewSQLiteDB(path)
}

// openEngine builds an engine over db with the service's configuration. When
// Redis is configured, alerts raised by the command reach guards the same way
// the service's do.
func openEngine(ctx context.Context, db repository.Store) (*dispatch.Engine, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []dispatch.Option{}
	cleanup := func() {}
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		streams := redisnotify.New(rdb, redisnotify.Options{
			AlertStream:     cfg.Redis.AlertStream,
			ExhaustedStream: cfg.Redis.ExhaustedStream,
			MaxLen:          cfg.Redis.MaxLen,
		})
		opts = append(opts, dispatch.WithNotifier(streams), dispatch.WithMonitor(streams))
		cleanup = func() { rdb.Close() }
	}

	engine, err := dispatch.New(ctx, db, dispatch.Config{
		DedupWindow:     cfg.Dispatch.DedupWindow,
		ResponseTimeout: cfg.Dispatch.ResponseTimeout,
	}, opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return engine, cfg, cleanup, nil
}

func statusColor(s models.IncidentStatus) string {
	switch s {
	case models.IncidentCreated:
		return color.New(color.FgRed).Sprint(s)
	case models.IncidentAssigned:
		return color.New(color.FgYellow).Sprint(s)
	case models.IncidentInProgress:
		return color.New(color.FgBlue).Sprint(s)
	default:
		return color.New(color.FgGreen).Sprint(s)
	}
}

func priorityColor(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return color.New(color.FgHiRed, color.Bold).Sprint(p)
	case models.PriorityHigh:
		return color.New(color.FgRed).Sprint(p)
	default:
		return string(p)
	}
}
