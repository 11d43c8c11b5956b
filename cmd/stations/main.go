package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/station-table-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/station-table-service/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/station-table-service/internal/adapter/redis"
	sqliteadapter "github.com/couchcryptid/station-table-service/internal/adapter/sqlite"
	"github.com/couchcryptid/station-table-service/internal/config"
	"github.com/couchcryptid/station-table-service/internal/observability"
	"github.com/couchcryptid/station-table-service/internal/pipeline"
	"github.com/couchcryptid/station-table-service/internal/table"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg)
	if cfg.OTLPEndpoint != "" {
		otlpLogger, shutdown, err := observability.NewOTLPLogger(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize log exporter", "error", err)
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("log exporter shutdown error", "error", err)
			}
		}()
		logger = otlpLogger
	}
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	changelog, err := openChangelog(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open changelog", "backend", cfg.ChangelogBackend, "error", err)
		return 1
	}
	defer func() {
		if err := changelog.Close(); err != nil {
			logger.Error("changelog close error", "error", err)
		}
	}()
	logger.Info("changelog opened", "backend", cfg.ChangelogBackend)

	tbl := table.New(changelog, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, tbl, logger)

	// Start HTTP server; /readyz reports 503 until recovery completes.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
	}()

	if err := tbl.Recover(ctx); err != nil {
		logger.Error("cannot serve table", "error", err)
		return 1
	}

	if err := runConsumers(ctx, cfg, tbl, logger, metrics); err != nil {
		logger.Error("consumer failed", "error", err)
		return 1
	}
	return 0
}

type closableChangelog interface {
	table.Changelog
	io.Closer
}

func openChangelog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (closableChangelog, error) {
	switch cfg.ChangelogBackend {
	case config.BackendKafka:
		kafkaadapter.EnsureTopics(ctx, cfg, logger)
		return kafkaadapter.NewChangelog(cfg, logger), nil
	case config.BackendRedis:
		return redisadapter.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream)
	case config.BackendSQLite:
		return sqliteadapter.Open(cfg.SQLitePath)
	case config.BackendMemory:
		logger.Warn("memory changelog is not durable; table state is lost on restart")
		return table.NewMemoryChangelog(), nil
	default:
		return nil, fmt.Errorf("unknown changelog backend %q", cfg.ChangelogBackend)
	}
}

// runConsumers starts one pipeline per configured consumer, each owning its
// own group reader, and waits for all of them. Any consumer failing stops the rest.
func runConsumers(ctx context.Context, cfg *config.Config, tbl *table.Manager, logger *slog.Logger, metrics *observability.Metrics) error {
	g, gctx := errgroup.WithContext(ctx)
	transformer := pipeline.NewTransformer()

	for i := range cfg.ConsumerCount {
		reader := kafkaadapter.NewReader(cfg, logger)
		name := fmt.Sprintf("%s-%d", cfg.KafkaGroupID, i)
		p := pipeline.New(reader, transformer, tbl, logger, metrics,
			pipeline.WithName(name),
			pipeline.WithMaxRetries(cfg.MaxRetries),
		)
		g.Go(func() error {
			defer func() {
				if err := reader.Close(); err != nil {
					logger.Error("kafka reader close error", "consumer", name, "error", err)
				}
			}()
			return p.Run(gctx)
		})
	}

	logger.Info("consumers started", "count", cfg.ConsumerCount, "topic", cfg.KafkaSourceTopic)
	err := g.Wait()
	logger.Info("shutting down")
	return err
}
