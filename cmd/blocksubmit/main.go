// Package main implements the blocksubmit service.
// It takes solved block candidates from Kafka, submits them to TurtleCoind and
// publishes the outcome of every submission.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bardlex/turtlego/internal/config"
	"github.com/bardlex/turtlego/internal/messaging"
	"github.com/bardlex/turtlego/pkg/daemon"
	terrors "github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/retry"
	"github.com/bardlex/turtlego/pkg/transport"
)

const consumerGroup = "blocksubmit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting blocksubmit",
		"daemon", cfg.Daemon().BaseURL(),
		"brokers", cfg.KafkaBrokers,
	)

	reg := prometheus.NewRegistry()
	metrics := transport.NewMetrics(reg)
	opts := []transport.Option{transport.WithLogger(logger), transport.WithMetrics(metrics)}

	detectCtx, detectCancel := context.WithTimeout(context.Background(), cfg.DaemonTimeout)
	node, version, err := daemon.Detect(detectCtx, cfg.Daemon(), opts...)
	detectCancel()
	if err != nil {
		logger.WithError(err).Error("failed to reach TurtleCoind")
		os.Exit(1)
	}
	logger.Info("connected to TurtleCoind", "version", version.String(), "legacy", version.IsLegacy())

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger,
		messaging.WithRetryConfig(retry.SubmitConfig()))
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()

	submitter := NewBlockSubmitter(logger, node, kafkaClient)
	reg.MustRegister(submitter.Collectors()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go submitter.Start(ctx)
	go func() {
		err := kafkaClient.StartConsumer(ctx, messaging.TopicBlockCandidates, consumerGroup,
			func() proto.Message { return &structpb.Struct{} }, submitter)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("block candidate consumer failed")
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

	cancel()
	if err := submitter.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("metrics server shutdown failed")
	}

	stats := submitter.GetStats()
	logger.Info("blocksubmit stopped",
		"submitted", stats.TotalSubmitted,
		"accepted", stats.TotalAccepted,
		"rejected", stats.TotalRejected,
		"failed", stats.TotalFailed,
	)
}

// Submitter is the part of daemon.Node blocksubmit needs
type Submitter interface {
	Endpoint() string
	SubmitBlock(ctx context.Context, blob string) (string, error)
}

// Publisher sends protobuf messages to a topic
type Publisher interface {
	PublishProto(ctx context.Context, topic, key string, msg proto.Message) error
}

// BlockSubmitter submits queued block candidates one at a time and reports results
type BlockSubmitter struct {
	logger    *log.Logger
	node      Submitter
	publisher Publisher

	blockQueue chan *messaging.BlockCandidateMessage
	done       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
	started    atomic.Bool

	submitted     atomic.Int64
	accepted      atomic.Int64
	rejected      atomic.Int64
	failed        atomic.Int64
	totalLatency  atomic.Int64 // nanoseconds
	lastSubmitted atomic.Int64 // unix nanoseconds

	outcomes *prometheus.CounterVec
}

// SubmissionStats represents block submission statistics
type SubmissionStats struct {
	QueueLength      int
	TotalSubmitted   int64
	TotalAccepted    int64
	TotalRejected    int64
	TotalFailed      int64
	AverageLatencyMs float64
	LastSubmissionAt time.Time
}

// NewBlockSubmitter creates a new block submitter
func NewBlockSubmitter(logger *log.Logger, node Submitter, publisher Publisher) *BlockSubmitter {
	return &BlockSubmitter{
		logger:     logger.WithComponent("blocksubmit").WithEndpoint(node.Endpoint()),
		node:       node,
		publisher:  publisher,
		blockQueue: make(chan *messaging.BlockCandidateMessage, 100),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turtlego",
			Subsystem: "blocksubmit",
			Name:      "submissions_total",
			Help:      "Block submissions by status.",
		}, []string{"status"}),
	}
}

// Collectors returns the submitter's Prometheus collectors
func (bs *BlockSubmitter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{bs.outcomes}
}

// Start runs the submission worker until ctx ends or Shutdown is called. It must be
// called at most once.
func (bs *BlockSubmitter) Start(ctx context.Context) {
	bs.started.Store(true)
	defer close(bs.stopped)

	bs.logger.Info("submission worker started")
	defer bs.logger.Info("submission worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-bs.done:
			return
		case candidate := <-bs.blockQueue:
			bs.submitBlock(ctx, candidate)
		}
	}
}

// Shutdown stops the worker and waits for an in-flight submission to finish
func (bs *BlockSubmitter) Shutdown(ctx context.Context) error {
	bs.logger.Info("shutting down block submitter")
	bs.stopOnce.Do(func() { close(bs.done) })
	if !bs.started.Load() {
		return nil
	}

	select {
	case <-bs.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleMessage decodes a candidate from Kafka and queues it
func (bs *BlockSubmitter) HandleMessage(_ context.Context, key string, msg proto.Message) error {
	s, ok := msg.(*structpb.Struct)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	candidate, err := messaging.BlockCandidateFromProto(s)
	if err != nil {
		return err
	}
	if candidate.CandidateID == "" {
		candidate.CandidateID = key
	}
	return bs.Enqueue(candidate)
}

// Enqueue adds a candidate to the submission queue without blocking
func (bs *BlockSubmitter) Enqueue(candidate *messaging.BlockCandidateMessage) error {
	select {
	case <-bs.done:
		return fmt.Errorf("submitter shutting down")
	default:
	}

	select {
	case bs.blockQueue <- candidate:
		bs.logger.Info("block candidate queued for submission",
			"candidate_id", candidate.CandidateID,
			"height", candidate.Height,
			"source", candidate.Source,
		)
		return nil
	default:
		return fmt.Errorf("block queue full, dropping candidate %s", candidate.CandidateID)
	}
}

// submitBlock submits one candidate and publishes the result. A candidate is never
// resubmitted: the daemon is the only judge of a block.
func (bs *BlockSubmitter) submitBlock(ctx context.Context, candidate *messaging.BlockCandidateMessage) *messaging.BlockSubmissionResult {
	logger := bs.logger.WithFields(
		"candidate_id", candidate.CandidateID,
		"height", candidate.Height,
	)

	start := time.Now()
	hash, err := bs.node.SubmitBlock(ctx, candidate.BlockBlob)
	latency := time.Since(start)

	result := &messaging.BlockSubmissionResult{
		CandidateID: candidate.CandidateID,
		BlockHash:   hash,
		Height:      candidate.Height,
		Status:      classify(err),
		SubmittedAt: time.Now(),
		LatencyMs:   float64(latency.Nanoseconds()) / 1e6,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
		logger.WithError(err).Error("block submission failed", "status", result.Status)
	}
	logger.LogSubmission("block", hash, result.Status, latency)

	bs.record(result.Status, latency)

	msg, err := result.ToProto()
	if err != nil {
		logger.WithError(err).Error("failed to encode submission result")
		return result
	}
	// The result outlives the consumer context so a shutdown does not lose it
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := bs.publisher.PublishProto(pubCtx, messaging.TopicBlockResults, candidate.CandidateID, msg); err != nil {
		logger.WithError(err).Error("failed to publish submission result")
	}
	return result
}

func classify(err error) string {
	switch {
	case err == nil:
		return messaging.StatusAccepted
	case terrors.IsRejected(err), terrors.IsType(err, terrors.ErrorTypeValidation):
		return messaging.StatusRejected
	default:
		return messaging.StatusFailed
	}
}

func (bs *BlockSubmitter) record(status string, latency time.Duration) {
	bs.submitted.Add(1)
	bs.totalLatency.Add(latency.Nanoseconds())
	bs.lastSubmitted.Store(time.Now().UnixNano())
	switch status {
	case messaging.StatusAccepted:
		bs.accepted.Add(1)
	case messaging.StatusRejected:
		bs.rejected.Add(1)
	default:
		bs.failed.Add(1)
	}
	bs.outcomes.WithLabelValues(status).Inc()
}

// GetQueueLength returns the current queue length
func (bs *BlockSubmitter) GetQueueLength() int {
	return len(bs.blockQueue)
}

// GetStats returns submission statistics
func (bs *BlockSubmitter) GetStats() *SubmissionStats {
	stats := &SubmissionStats{
		QueueLength:    bs.GetQueueLength(),
		TotalSubmitted: bs.submitted.Load(),
		TotalAccepted:  bs.accepted.Load(),
		TotalRejected:  bs.rejected.Load(),
		TotalFailed:    bs.failed.Load(),
	}
	if stats.TotalSubmitted > 0 {
		stats.AverageLatencyMs = float64(bs.totalLatency.Load()) / float64(stats.TotalSubmitted) / 1e6
	}
	if last := bs.lastSubmitted.Load(); last > 0 {
		stats.LastSubmissionAt = time.Unix(0, last)
	}
	return stats
}
