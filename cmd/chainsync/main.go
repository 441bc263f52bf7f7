// Package main implements the chainsync service.
// It follows a TurtleCoind chain into PostgreSQL, Redis and InfluxDB and publishes an
// event to Kafka for every stored block.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bardlex/turtlego/internal/config"
	"github.com/bardlex/turtlego/internal/database"
	"github.com/bardlex/turtlego/internal/database/influx"
	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/internal/database/redis"
	"github.com/bardlex/turtlego/internal/messaging"
	"github.com/bardlex/turtlego/pkg/daemon"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting chainsync",
		"daemon", cfg.Daemon().BaseURL(),
		"source", cfg.SyncSource,
		"batch", cfg.SyncBatch,
	)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("chainsync failed")
		os.Exit(1)
	}
	logger.Info("chainsync stopped")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithMetrics(transport.NewMetrics(reg)),
	}

	node, err := connect(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	src, err := NewSource(node)
	if err != nil {
		return err
	}

	dbManager, err := database.NewManager(&database.Config{
		Postgres: postgres.DefaultConfig(cfg.PostgresURL),
		Redis:    &redis.Config{URL: cfg.RedisURL},
		Influx: &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		},
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			logger.WithError(err).Error("failed to close databases")
		}
	}()

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()

	syncer := NewSyncer(src, node, dbManager, kafkaClient, logger, Options{
		Source:   cfg.SyncSource,
		Batch:    uint64(cfg.SyncBatch),
		Interval: cfg.SyncInterval,
		Rate:     cfg.SyncRate,
	})
	reg.MustRegister(syncer.Collectors()...)

	g, gctx := errgroup.WithContext(ctx)

	dbManager.StartPeriodicTasks(gctx)
	g.Go(func() error { return syncer.Run(gctx) })

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// connect reaches the daemon, detecting its API generation unless the legacy client
// is forced
func connect(ctx context.Context, cfg *config.Config, logger *log.Logger, opts []transport.Option) (daemon.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DaemonTimeout)
	defer cancel()

	if cfg.DaemonLegacy {
		client, err := daemon.NewLegacyClient(cfg.Daemon(), opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("using legacy TurtleCoind API")
		return daemon.NewLegacyNode(client), nil
	}

	node, version, err := daemon.Detect(ctx, cfg.Daemon(), opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to TurtleCoind", "version", version.String(), "legacy", version.IsLegacy())
	return node, nil
}
