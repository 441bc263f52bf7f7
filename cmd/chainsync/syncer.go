package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/bardlex/turtlego/internal/database"
	"github.com/bardlex/turtlego/internal/database/influx"
	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/internal/messaging"
	"github.com/bardlex/turtlego/pkg/circuit"
	"github.com/bardlex/turtlego/pkg/daemon"
	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/retry"
)

// ChainStore is the part of database.Manager the syncer writes through
type ChainStore interface {
	Position(ctx context.Context, source string) (*database.Position, error)
	RecordBlocks(ctx context.Context, source string, blocks []*postgres.ChainBlock) (*database.RecordResult, error)
	RecordSyncPage(source string, blocks int, duration time.Duration)
	RecordChainState(s influx.ChainState)
}

// ChainInfo reports the daemon's view of the chain tip
type ChainInfo interface {
	Height(ctx context.Context) (*daemon.Height, error)
	LastBlock(ctx context.Context) (*daemon.BlockHeader, error)
}

// Publisher sends JSON events to a topic
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, data []byte) error
}

var (
	_ ChainStore = (*database.Manager)(nil)
	_ ChainInfo  = daemon.Node(nil)
	_ Publisher  = (*messaging.KafkaClient)(nil)
)

// Options tunes a Syncer
type Options struct {
	// Source names the followed chain in every store
	Source   string
	Batch    uint64
	Interval time.Duration
	// Rate caps page requests per second
	Rate float64
}

// Syncer follows one daemon's chain into the stores, one page at a time
type Syncer struct {
	opts      Options
	src       Source
	info      ChainInfo
	store     ChainStore
	publisher Publisher
	logger    *log.Logger

	limiter        *rate.Limiter
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config

	pages         *prometheus.CounterVec
	blocks        prometheus.Counter
	reorgs        prometheus.Counter
	height        prometheus.Gauge
	networkHeight prometheus.Gauge
}

// NewSyncer creates a syncer for src
func NewSyncer(src Source, info ChainInfo, store ChainStore, publisher Publisher, logger *log.Logger, opts Options) *Syncer {
	if opts.Batch == 0 {
		opts.Batch = daemon.DefaultSyncCount
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}

	labels := prometheus.Labels{"source": opts.Source}
	return &Syncer{
		opts:      opts,
		src:       src,
		info:      info,
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent("chainsync").WithEndpoint(src.Endpoint()).WithFields("source", opts.Source),
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), 1),
		circuitBreaker: circuit.New(&circuit.Config{
			Name:            "daemon",
			MaxFailures:     5,
			SuccessRequired: 1,
			Timeout:         30 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
		retryConfig: retry.NetworkConfig(),

		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "turtlego",
			Subsystem:   "chainsync",
			Name:        "pages_total",
			Help:        "Sync pages by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "turtlego",
			Subsystem:   "chainsync",
			Name:        "blocks_stored_total",
			Help:        "Blocks written to the chain store.",
			ConstLabels: labels,
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "turtlego",
			Subsystem:   "chainsync",
			Name:        "reorganisations_total",
			Help:        "Chain reorganisations seen while syncing.",
			ConstLabels: labels,
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "turtlego",
			Subsystem:   "chainsync",
			Name:        "height",
			Help:        "Highest stored block.",
			ConstLabels: labels,
		}),
		networkHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "turtlego",
			Subsystem:   "chainsync",
			Name:        "network_height",
			Help:        "Network height reported by the daemon.",
			ConstLabels: labels,
		}),
	}
}

// Collectors returns the syncer's Prometheus collectors
func (s *Syncer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.pages, s.blocks, s.reorgs, s.height, s.networkHeight}
}

// Run syncs until the daemon reports its tip, records the chain state, then waits one
// interval and starts over. It returns only when ctx ends.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("chain sync started", "batch", s.opts.Batch, "interval", s.opts.Interval.String())

	for {
		caughtUp, err := s.SyncPage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("sync page failed", "breaker", s.circuitBreaker.GetState().String())
			caughtUp = true
		}
		if !caughtUp {
			continue
		}

		s.RecordChainState(ctx)

		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// SyncPage fetches and stores one page from the stored position.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - bool: True when there is nothing more to fetch right now
//   - error: Daemon or storage failure
func (s *Syncer) SyncPage(ctx context.Context) (bool, error) {
	pos, err := s.store.Position(ctx, s.opts.Source)
	if err != nil {
		s.pages.WithLabelValues("error").Inc()
		return false, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}

	start := time.Now()
	page, err := circuit.ExecuteWithResult(ctx, s.circuitBreaker, func() (*Page, error) {
		return retry.DoWithResult(ctx, s.retryConfig, func() (*Page, error) {
			// The daemon finds the fork point from the checkpoints. A start height
			// would override it and hide a reorganisation below the checkpoint.
			return s.src.Page(ctx, pos.Checkpoints, 0, s.opts.Batch)
		})
	})
	if err != nil {
		s.pages.WithLabelValues("error").Inc()
		return false, err
	}
	if len(page.Blocks) == 0 {
		s.pages.WithLabelValues("empty").Inc()
		return true, nil
	}

	res, err := s.store.RecordBlocks(ctx, s.opts.Source, page.Blocks)
	if err != nil {
		s.pages.WithLabelValues("error").Inc()
		return false, errors.Wrap(err, errors.ErrorTypeDatabase, "sync_page", "failed to record sync page").
			WithContext("first_height", page.Blocks[0].Height)
	}
	s.store.RecordSyncPage(s.opts.Source, len(page.Blocks), time.Since(start))

	last := page.Blocks[len(page.Blocks)-1]
	s.pages.WithLabelValues("stored").Inc()
	s.blocks.Add(float64(res.Stored))
	s.height.Set(float64(last.Height))
	if res.ReorgDepth > 0 {
		s.reorgs.Inc()
	}

	s.publish(ctx, page.Blocks)

	var top uint64
	if page.Top != nil {
		top = page.Top.Height
	}
	s.logger.LogSyncProgress(last.Height, top, res.Stored, page.Synced)

	// A page that only repeats the stored tip means the daemon has nothing newer
	progressed := pos.Fresh || last.Height > pos.Height || res.ReorgDepth > 0
	return page.Synced || !progressed, nil
}

// publish sends a chain event for each block and gives up on the page at the first
// failure
func (s *Syncer) publish(ctx context.Context, blocks []*postgres.ChainBlock) {
	for _, b := range blocks {
		data, err := json.Marshal(&messaging.ChainBlockEvent{
			Hash:         b.Hash,
			Height:       b.Height,
			Timestamp:    b.Timestamp,
			Transactions: b.TransactionCount,
			Source:       s.opts.Source,
		})
		if err != nil {
			s.logger.WithError(err).Error("failed to encode chain event")
			return
		}
		if err := s.publisher.PublishJSON(ctx, messaging.TopicChainBlocks, b.Hash, data); err != nil {
			s.logger.WithBlock(b.Hash, b.Height).WithError(err).Warn("failed to publish chain events")
			return
		}
	}
}

// RecordChainState stores the daemon's heights and current difficulty. Failures are
// logged only.
func (s *Syncer) RecordChainState(ctx context.Context) {
	h, err := s.info.Height(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to read daemon height")
		return
	}
	state := influx.ChainState{
		Source:        s.opts.Source,
		Height:        h.Height,
		NetworkHeight: h.NetworkHeight,
		Synced:        h.Height >= h.NetworkHeight,
		Time:          time.Now(),
	}
	if last, err := s.info.LastBlock(ctx); err == nil {
		state.Difficulty = last.Difficulty
	} else {
		s.logger.WithError(err).Warn("failed to read last block header")
	}

	s.networkHeight.Set(float64(h.NetworkHeight))
	s.store.RecordChainState(state)
}
