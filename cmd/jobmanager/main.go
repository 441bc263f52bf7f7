// Package main implements the jobmanager service.
// It builds mining jobs from TurtleCoind block templates and distributes them via Kafka
// whenever the chain tip moves.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/bardlex/turtlego/internal/config"
	"github.com/bardlex/turtlego/internal/messaging"
	"github.com/bardlex/turtlego/pkg/address"
	"github.com/bardlex/turtlego/pkg/daemon"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting jobmanager",
		"version", cfg.Version,
		"daemon", cfg.Daemon().BaseURL(),
		"mining_address", cfg.MiningAddress,
	)

	if err := address.Validate(cfg.MiningAddress); err != nil {
		logger.WithError(err).Error("MINING_ADDRESS is not a valid TurtleCoin address")
		os.Exit(1)
	}

	// Connect to TurtleCoind
	node, err := connect(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to TurtleCoind")
		os.Exit(1)
	}

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()

	jobManager := NewJobManager(cfg, logger, node, kafkaClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := jobManager.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("job manager failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobManager.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}

	logger.Info("jobmanager stopped")
}

func connect(cfg *config.Config, logger *log.Logger) (daemon.Node, error) {
	if cfg.DaemonLegacy {
		client, err := daemon.NewLegacyClient(cfg.Daemon(), transport.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return daemon.NewLegacyNode(client), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DaemonTimeout)
	defer cancel()
	node, version, err := daemon.Detect(ctx, cfg.Daemon(), transport.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Info("connected to TurtleCoind", "version", version.String())
	return node, nil
}

// TemplateSource is the part of daemon.Node the job manager needs
type TemplateSource interface {
	LastBlock(ctx context.Context) (*daemon.BlockHeader, error)
	BlockTemplate(ctx context.Context, address string, reserveSize int) (*daemon.BlockTemplate, error)
}

// Publisher sends protobuf messages to a topic
type Publisher interface {
	PublishProto(ctx context.Context, topic, key string, msg proto.Message) error
}

// JobManager manages mining job creation and distribution
type JobManager struct {
	cfg       *config.Config
	logger    *log.Logger
	node      TemplateSource
	publisher Publisher

	// Current job state
	mu         sync.Mutex
	tipHash    string
	currentJob *messaging.BlockTemplateMessage
	jobCounter int64

	done     chan struct{}
	stopOnce sync.Once
}

// NewJobManager creates a new job manager
func NewJobManager(cfg *config.Config, logger *log.Logger, node TemplateSource, publisher Publisher) *JobManager {
	return &JobManager{
		cfg:       cfg,
		logger:    logger.WithComponent("jobmanager"),
		node:      node,
		publisher: publisher,
		done:      make(chan struct{}),
	}
}

// Start publishes a first job, then polls the tip until ctx ends or Shutdown is called
func (jm *JobManager) Start(ctx context.Context) error {
	jm.logger.Info("job manager starting", "interval", jm.cfg.TemplateInterval.String())

	ticker := time.NewTicker(jm.cfg.TemplateInterval)
	defer ticker.Stop()

	if err := jm.checkForNewBlock(ctx); err != nil {
		jm.logger.WithError(err).Error("failed to create initial job")
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-jm.done:
			return nil
		case <-ticker.C:
			if err := jm.checkForNewBlock(ctx); err != nil {
				jm.logger.WithError(err).Error("failed to check for new block")
			}
		}
	}
}

// Shutdown stops the polling loop
func (jm *JobManager) Shutdown(_ context.Context) error {
	jm.logger.Info("shutting down job manager")
	jm.stopOnce.Do(func() { close(jm.done) })
	return nil
}

// checkForNewBlock creates a new job when the chain tip has moved since the last one
func (jm *JobManager) checkForNewBlock(ctx context.Context) error {
	tipCtx, tipCancel := context.WithTimeout(ctx, 5*time.Second)
	defer tipCancel()
	tip, err := jm.node.LastBlock(tipCtx)
	if err != nil {
		return fmt.Errorf("failed to get last block: %w", err)
	}

	jm.mu.Lock()
	previous := jm.tipHash
	jm.mu.Unlock()

	if previous == tip.Hash {
		return nil
	}
	if previous != "" {
		jm.logger.Info("new block detected",
			"old_tip", previous,
			"new_tip", tip.Hash,
			"height", tip.Height,
		)
	}
	return jm.createNewJob(ctx, tip)
}

// createNewJob fetches a template on top of tip and publishes it
func (jm *JobManager) createNewJob(ctx context.Context, tip *daemon.BlockHeader) error {
	templateCtx, templateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer templateCancel()
	template, err := jm.node.BlockTemplate(templateCtx, jm.cfg.MiningAddress, jm.cfg.ReserveSize)
	if err != nil {
		return fmt.Errorf("failed to get block template: %w", err)
	}

	jm.mu.Lock()
	jm.jobCounter++
	job := &messaging.BlockTemplateMessage{
		JobID:          fmt.Sprintf("job_%d", jm.jobCounter),
		Blob:           template.Blob,
		Height:         template.Height,
		Difficulty:     template.Difficulty,
		ReservedOffset: template.ReservedOffset,
		PrevHash:       tip.Hash,
		CreatedAt:      time.Now(),
	}
	jm.mu.Unlock()

	msg, err := job.ToProto()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := jm.publisher.PublishProto(ctx, messaging.TopicBlockTemplates, job.JobID, msg); err != nil {
		return fmt.Errorf("failed to publish job to Kafka: %w", err)
	}

	// The tip only counts as handled once its job is out
	jm.mu.Lock()
	jm.tipHash = tip.Hash
	jm.currentJob = job
	jm.mu.Unlock()

	jm.logger.Info("new job created and published",
		"job_id", job.JobID,
		"height", job.Height,
		"prev_hash", job.PrevHash,
		"difficulty", job.Difficulty,
	)
	return nil
}

// CurrentJob returns the last published job, or nil before the first one
func (jm *JobManager) CurrentJob() *messaging.BlockTemplateMessage {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.currentJob
}
