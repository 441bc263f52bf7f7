// Package database coordinates the chain stores used by chainsync.
// PostgreSQL keeps blocks, Redis keeps the resume checkpoint and InfluxDB keeps time series.
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/bardlex/turtlego/internal/database/influx"
	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/internal/database/redis"
	"github.com/bardlex/turtlego/pkg/circuit"
	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/retry"
)

// BlockStore persists chain blocks
type BlockStore interface {
	UpsertBlocks(ctx context.Context, blocks []*postgres.ChainBlock) error
	GetBlocksByHash(ctx context.Context, source string, hashes []string) ([]*postgres.ChainBlock, error)
	GetRecentBlocks(ctx context.Context, source string, limit, offset int) ([]*postgres.ChainBlock, error)
	LatestHeight(ctx context.Context, source string) (uint64, bool, error)
	DeleteFrom(ctx context.Context, source string, height uint64) ([]string, error)
}

// CheckpointStore remembers where a sync stopped
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, source string, cp redis.Checkpoint, hashes []string) error
	GetCheckpoint(ctx context.Context, source string) (*redis.Checkpoint, error)
	RecentHashes(ctx context.Context, source string, n int) ([]string, error)
	ForgetHashes(ctx context.Context, source string, hashes []string) error
	IncrementCounter(ctx context.Context, key string, delta int64) (int64, error)
	GetCounter(ctx context.Context, key string) (int64, error)
}

// MetricsWriter records chain time series. Writes are asynchronous and never fail.
type MetricsWriter interface {
	WriteChainState(s influx.ChainState)
	WriteBlock(source string, height uint64, hash string, transactions int, ts time.Time)
	WriteSyncPage(source string, blocks int, duration time.Duration)
	Flush()
}

// HistoryReader reads chain time series back. A MetricsWriter may implement it.
type HistoryReader interface {
	GetHeightHistory(ctx context.Context, source string, duration time.Duration) ([]influx.HeightPoint, error)
}

var (
	_ BlockStore      = (*postgres.ChainBlockRepository)(nil)
	_ CheckpointStore = (*redis.Client)(nil)
	_ MetricsWriter   = (*influx.Client)(nil)
	_ HistoryReader   = (*influx.Client)(nil)
)

func syncedCounterKey(source string) string { return "blocks_synced:" + source }

type closer struct {
	name  string
	close func() error
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// Manager coordinates chain storage across PostgreSQL, Redis and InfluxDB
type Manager struct {
	Blocks      BlockStore
	Checkpoints CheckpointStore
	Metrics     MetricsWriter

	logger     *log.Logger
	closers    []closer
	checks     []healthCheck
	influxErrs <-chan error

	// Error handling
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// Config holds configuration for all database systems
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// NewManager connects to every store. A failure closes whatever was already open.
func NewManager(cfg *Config, logger *log.Logger) (*Manager, error) {
	var opened []closer
	fail := func(err error) (*Manager, error) {
		var result *multierror.Error
		result = multierror.Append(result, err)
		for _, c := range opened {
			if closeErr := c.close(); closeErr != nil {
				result = multierror.Append(result, fmt.Errorf("%s cleanup: %w", c.name, closeErr))
			}
		}
		return nil, result.ErrorOrNil()
	}

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return fail(errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
			"failed to connect to PostgreSQL database"))
	}
	opened = append(opened, closer{"postgres", pgClient.Close})

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return fail(errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
			"failed to connect to Redis database"))
	}
	opened = append(opened, closer{"redis", redisClient.Close})

	influxClient, err := influx.NewClient(cfg.Influx)
	if err != nil {
		return fail(errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
			"failed to connect to InfluxDB database"))
	}

	m := NewManagerWithStores(postgres.NewChainBlockRepository(pgClient.DB()), redisClient, influxClient, logger)
	m.closers = append(opened, closer{"influx", func() error { influxClient.Close(); return nil }})
	m.checks = []healthCheck{
		{"postgres", pgClient.Health},
		{"redis", redisClient.Health},
		{"influx", influxClient.Health},
	}
	m.influxErrs = influxClient.WriteErrors()
	return m, nil
}

// NewManagerWithStores builds a Manager over already opened stores. The caller keeps
// ownership of them: Close and Health do nothing for stores passed here.
func NewManagerWithStores(blocks BlockStore, checkpoints CheckpointStore, metrics MetricsWriter, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}

	cbConfig := &circuit.Config{
		Name:            "database",
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &Manager{
		Blocks:         blocks,
		Checkpoints:    checkpoints,
		Metrics:        metrics,
		logger:         logger.WithComponent("database"),
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.StorageConfig(),
	}
}

// SetRetryConfig replaces the write retry schedule
func (m *Manager) SetRetryConfig(cfg *retry.Config) {
	m.retryConfig = cfg
}

// Close closes all database connections and reports every failure
func (m *Manager) Close() error {
	var result *multierror.Error
	for _, c := range m.closers {
		if err := c.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s close: %w", c.name, err))
		}
	}
	return result.ErrorOrNil()
}

// Health checks the health of all database connections
func (m *Manager) Health(ctx context.Context) error {
	var result *multierror.Error
	for _, h := range m.checks {
		if err := h.check(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s health check failed: %w", h.name, err))
		}
	}
	return result.ErrorOrNil()
}

// Position is where a sync of one source should resume
type Position struct {
	// Height and Hash are the last stored block. Both are zero when Fresh.
	Height uint64
	Hash   string
	// Checkpoints are recent stored hashes, newest first, for the daemon to find the fork point
	Checkpoints []string
	Fresh       bool
}

// Position returns the resume point of source. When Redis has lost the checkpoint it
// is rebuilt from PostgreSQL.
//
// Parameters:
//   - ctx: Context for cancellation
//   - source: Name of the daemon being followed
//
// Returns:
//   - *Position: Resume point, with Fresh set when nothing is stored
//   - error: Database error from either store
func (m *Manager) Position(ctx context.Context, source string) (*Position, error) {
	cp, err := m.Checkpoints.GetCheckpoint(ctx, source)
	switch {
	case err == nil:
		hashes, err := m.Checkpoints.RecentHashes(ctx, source, redis.MaxRecentHashes)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "position", "failed to read recent hashes").
				WithContext("source", source)
		}
		return &Position{Height: cp.Height, Hash: cp.Hash, Checkpoints: hashes}, nil
	case !stderrors.Is(err, redis.ErrNotFound):
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "position", "failed to read checkpoint").
			WithContext("source", source)
	}

	recent, err := m.Blocks.GetRecentBlocks(ctx, source, redis.MaxRecentHashes, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "position", "failed to read stored blocks").
			WithContext("source", source)
	}
	if len(recent) == 0 {
		return &Position{Fresh: true}, nil
	}

	pos := &Position{Height: recent[0].Height, Hash: recent[0].Hash}
	for _, b := range recent {
		pos.Checkpoints = append(pos.Checkpoints, b.Hash)
	}
	m.logger.Warn("checkpoint missing, rebuilt from stored blocks",
		"source", source, "height", pos.Height)
	return pos, nil
}

// RecordResult describes what RecordBlocks did
type RecordResult struct {
	Stored int
	// ReorgDepth is the number of previously stored blocks that were replaced
	ReorgDepth uint64
}

// RecordBlocks stores one page of consecutive blocks for source and moves the
// checkpoint to the last of them. Blocks at or below the checkpoint that are not
// already stored mean the daemon switched chains; everything above the fork point is
// dropped before the page is written.
//
// Parameters:
//   - ctx: Context for cancellation
//   - source: Name of the daemon being followed
//   - blocks: Blocks in ascending, gap-free height order
//
// Returns:
//   - *RecordResult: Count stored and reorganisation depth
//   - error: Validation error for a malformed page, database error otherwise
func (m *Manager) RecordBlocks(ctx context.Context, source string, blocks []*postgres.ChainBlock) (*RecordResult, error) {
	if len(blocks) == 0 {
		return &RecordResult{}, nil
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Height != blocks[i-1].Height+1 {
			return nil, errors.New(errors.ErrorTypeValidation, "record_blocks",
				"blocks are not consecutive").
				WithContext("source", source).
				WithContext("height", blocks[i].Height)
		}
	}
	for _, b := range blocks {
		b.Source = source
	}

	return circuit.ExecuteWithResult(ctx, m.circuitBreaker, func() (*RecordResult, error) {
		return retry.DoWithResult(ctx, m.retryConfig, func() (*RecordResult, error) {
			return m.recordBlocks(ctx, source, blocks)
		})
	})
}

func (m *Manager) recordBlocks(ctx context.Context, source string, blocks []*postgres.ChainBlock) (*RecordResult, error) {
	result := &RecordResult{Stored: len(blocks)}

	forkHeight, depth, err := m.findFork(ctx, source, blocks)
	if err != nil {
		return nil, err
	}
	if depth > 0 {
		orphaned, err := m.Blocks.DeleteFrom(ctx, source, forkHeight)
		if err != nil {
			return nil, storageError(err, "rewind", "failed to drop orphaned blocks", source)
		}
		// Stale checkpoints only cost list slots
		if err := m.Checkpoints.ForgetHashes(ctx, source, orphaned); err != nil {
			m.logger.WithError(err).Warn("failed to drop orphaned checkpoint hashes", "source", source)
		}
		result.ReorgDepth = depth
		m.logger.Warn("chain reorganisation", "source", source, "fork_height", forkHeight, "depth", depth)
	}

	if err := m.Blocks.UpsertBlocks(ctx, blocks); err != nil {
		return nil, storageError(err, "record_blocks", "failed to store blocks in PostgreSQL", source).
			WithContext("first_height", blocks[0].Height)
	}

	last := blocks[len(blocks)-1]
	hashes := make([]string, len(blocks))
	for i, b := range blocks {
		hashes[i] = b.Hash
	}
	cp := redis.Checkpoint{Height: last.Height, Hash: last.Hash, UpdatedAt: time.Now()}
	if err := m.Checkpoints.SaveCheckpoint(ctx, source, cp, hashes); err != nil {
		return nil, storageError(err, "save_checkpoint", "failed to save checkpoint in Redis", source).
			WithContext("height", last.Height)
	}

	// Best effort from here on
	for _, b := range blocks {
		m.Metrics.WriteBlock(source, b.Height, b.Hash, b.TransactionCount, b.Timestamp)
	}
	if _, err := m.Checkpoints.IncrementCounter(ctx, syncedCounterKey(source), int64(len(blocks))); err != nil {
		m.logger.WithError(err).Warn("failed to update synced block counter", "source", source)
	}

	return result, nil
}

// findFork returns the lowest height in blocks whose hash differs from what is
// stored, and how many stored blocks that invalidates
func (m *Manager) findFork(ctx context.Context, source string, blocks []*postgres.ChainBlock) (uint64, uint64, error) {
	cp, err := m.Checkpoints.GetCheckpoint(ctx, source)
	if err != nil {
		if stderrors.Is(err, redis.ErrNotFound) {
			return 0, 0, nil
		}
		return 0, 0, storageError(err, "find_fork", "failed to read checkpoint", source)
	}
	if blocks[0].Height > cp.Height {
		return 0, 0, nil
	}

	var overlap []string
	for _, b := range blocks {
		if b.Height > cp.Height {
			break
		}
		overlap = append(overlap, b.Hash)
	}

	known, err := m.Blocks.GetBlocksByHash(ctx, source, overlap)
	if err != nil {
		return 0, 0, storageError(err, "find_fork", "failed to look up stored blocks", source)
	}
	stored := make(map[string]uint64, len(known))
	for _, k := range known {
		stored[k.Hash] = k.Height
	}

	for _, b := range blocks[:len(overlap)] {
		if h, ok := stored[b.Hash]; !ok || h != b.Height {
			return b.Height, cp.Height - b.Height + 1, nil
		}
	}
	return 0, 0, nil
}

// RecordChainState writes a chain observation to InfluxDB
func (m *Manager) RecordChainState(s influx.ChainState) {
	m.Metrics.WriteChainState(s)
}

// RecordSyncPage writes sync throughput to InfluxDB
func (m *Manager) RecordSyncPage(source string, blocks int, duration time.Duration) {
	m.Metrics.WriteSyncPage(source, blocks, duration)
}

// RecentBlocks returns the highest stored blocks of source
func (m *Manager) RecentBlocks(ctx context.Context, source string, limit int) ([]*postgres.ChainBlock, error) {
	blocks, err := m.Blocks.GetRecentBlocks(ctx, source, limit, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "recent_blocks", "failed to read stored blocks").
			WithContext("source", source)
	}
	return blocks, nil
}

// SyncStatus summarises what is stored for one source
type SyncStatus struct {
	Source       string                 `json:"source"`
	Height       uint64                 `json:"height"`
	Hash         string                 `json:"hash"`
	Fresh        bool                   `json:"fresh"`
	BlocksSynced int64                  `json:"blocksSynced"`
	Recent       []*postgres.ChainBlock `json:"recent"`
}

// Status reports the resume point, the synced block counter and the newest limit
// stored blocks of source.
//
// Parameters:
//   - ctx: Context for cancellation
//   - source: Name of the daemon being followed
//   - limit: Number of recent blocks to include, 0 for none
//
// Returns:
//   - *SyncStatus: Stored state of source
//   - error: Database error from any store
func (m *Manager) Status(ctx context.Context, source string, limit int) (*SyncStatus, error) {
	pos, err := m.Position(ctx, source)
	if err != nil {
		return nil, err
	}

	synced, err := m.Checkpoints.GetCounter(ctx, syncedCounterKey(source))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "sync_status", "failed to read synced block counter").
			WithContext("source", source)
	}

	status := &SyncStatus{
		Source:       source,
		Height:       pos.Height,
		Hash:         pos.Hash,
		Fresh:        pos.Fresh,
		BlocksSynced: synced,
	}
	if limit > 0 {
		if status.Recent, err = m.RecentBlocks(ctx, source, limit); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// HeightHistory returns the recorded height of source over the last duration. It is
// empty when the metrics store cannot be read back.
func (m *Manager) HeightHistory(ctx context.Context, source string, duration time.Duration) ([]influx.HeightPoint, error) {
	reader, ok := m.Metrics.(HistoryReader)
	if !ok {
		return nil, nil
	}
	points, err := reader.GetHeightHistory(ctx, source, duration)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "height_history", "failed to query height history").
			WithContext("source", source)
	}
	return points, nil
}

// StartPeriodicTasks flushes InfluxDB and logs its asynchronous write errors until ctx ends
func (m *Manager) StartPeriodicTasks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Metrics.Flush()
			case err := <-m.influxErrs:
				m.logger.WithError(err).Warn("InfluxDB write failed")
			}
		}
	}()
}

// storageError wraps a store failure as a retryable database error. Cancellation is
// never retried.
func storageError(err error, operation, message, source string) *errors.ServiceError {
	se := errors.Wrap(err, errors.ErrorTypeDatabase, operation, message).WithContext("source", source)
	se.Retryable = !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
	return se
}
