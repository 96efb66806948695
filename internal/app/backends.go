// Package app opens the backends both processes share, choosing job store and
// queue implementations from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"geo-export-service/internal/config"
	"geo-export-service/internal/export"
	"geo-export-service/internal/matcher"
	"geo-export-service/internal/queue"
	"geo-export-service/internal/repository/postgresql"
	"geo-export-service/internal/repository/redisstore"
	"geo-export-service/internal/service"
	"geo-export-service/internal/worker"
)

type Backends struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Jobs  service.JobRepository
	Queue queue.Queue
	// Purger is set when expired records have to be deleted explicitly.
	Purger worker.Purger

	closers []func()
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}

	pool, err := postgresql.NewPool(ctx, postgresql.PoolConfig{
		DSN:             cfg.Database.DSN,
		Password:        cfg.Database.Password,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		DialTimeout:     cfg.Database.ConnectTimeout,
		ApplicationName: cfg.Database.ApplicationName,
	})
	if err != nil {
		return nil, fmt.Errorf("pg: %w", err)
	}
	b.Pool = pool
	b.closers = append(b.closers, pool.Close)

	if cfg.Store.Backend == "redis" || cfg.Queue.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.Redis = rdb
		b.closers = append(b.closers, func() { _ = rdb.Close() })
	}

	switch cfg.Store.Backend {
	case "redis":
		b.Jobs = redisstore.NewJobStore(b.Redis, cfg.Store.KeyPrefix)
	default:
		repo := postgresql.NewJobRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("pg schema: %w", err)
		}
		b.Jobs = repo
		b.Purger = repo
	}

	switch cfg.Queue.Backend {
	case "rabbitmq":
		rq, err := queue.DialRabbit(cfg.RabbitMQ.URL, cfg.Queue.Name)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Queue = rq
		b.closers = append(b.closers, func() { _ = rq.Close() })
	default:
		b.Queue = queue.NewRedisQueue(b.Redis, queue.Keys{
			Queue:      cfg.Queue.Name + ":queue",
			Processing: cfg.Queue.Name + ":processing",
			Leases:     cfg.Queue.Name + ":leases",
		}, cfg.Queue.Visibility)
	}

	logger.Info("backends ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("postgres_dsn", RedactDSN(cfg.Database.DSN)),
	)
	return b, nil
}

// Close releases backends in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func NewEngine(b *Backends, cfg *config.Config, tmpDir string, logger *zap.Logger) (*export.Engine, error) {
	m, err := matcher.NewPostgres(b.Pool, cfg.Matcher.CountFunction, cfg.Matcher.ExportFunction)
	if err != nil {
		return nil, err
	}
	return export.NewEngine(m,
		export.WithDataset(cfg.Matcher.Dataset),
		export.WithMaxFeatures(cfg.Matcher.MaxFeatures),
		export.WithTempDir(tmpDir),
		export.WithLogger(logger),
	), nil
}
