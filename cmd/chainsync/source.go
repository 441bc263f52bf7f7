package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/pkg/daemon"
)

// Page is one batch of consecutive blocks from a daemon
type Page struct {
	Blocks []*postgres.ChainBlock
	Synced bool
	Top    *daemon.TopBlock
}

// Source pages through a daemon's chain. Checkpoints are known hashes, newest first;
// with none, paging starts at height.
type Source interface {
	Endpoint() string
	Page(ctx context.Context, checkpoints []string, height, count uint64) (*Page, error)
}

// NewSource picks the sync call matching the daemon generation behind node
func NewSource(node daemon.Node) (Source, error) {
	switch n := node.(type) {
	case *daemon.Client:
		return &restSource{client: n}, nil
	case *daemon.LegacyNode:
		return &legacySource{client: n.Client()}, nil
	default:
		return nil, fmt.Errorf("no sync source for %T", node)
	}
}

// restSource pages with POST /sync
type restSource struct {
	client *daemon.Client
}

func (s *restSource) Endpoint() string { return s.client.Endpoint() }

func (s *restSource) Page(ctx context.Context, checkpoints []string, height, count uint64) (*Page, error) {
	res, err := s.client.Sync(ctx, daemon.SyncRequest{
		Checkpoints: checkpoints,
		Height:      height,
		Count:       count,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Synced: res.Synced, Top: res.TopBlock}
	for _, b := range res.Blocks {
		page.Blocks = append(page.Blocks, chainBlock(b.Hash, b.Height, b.Timestamp, b.CoinbaseTX, b.Transactions))
	}
	return page, nil
}

// legacySource pages with POST /getwalletsyncdata
type legacySource struct {
	client *daemon.LegacyClient
}

func (s *legacySource) Endpoint() string { return s.client.Endpoint() }

func (s *legacySource) Page(ctx context.Context, checkpoints []string, height, count uint64) (*Page, error) {
	res, err := s.client.WalletSyncData(ctx, daemon.LegacySyncRequest{
		BlockHashCheckpoints: checkpoints,
		StartHeight:          height,
		BlockCount:           count,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Synced: res.Synced, Top: res.TopBlock}
	for _, b := range res.Items {
		page.Blocks = append(page.Blocks, chainBlock(b.BlockHash, b.BlockHeight, b.BlockTimestamp, b.CoinbaseTX, b.Transactions))
	}
	return page, nil
}

func chainBlock(hash string, height, timestamp uint64, coinbase json.RawMessage, txs []json.RawMessage) *postgres.ChainBlock {
	count := len(txs)
	if len(coinbase) > 0 && string(coinbase) != "null" {
		count++
	}
	return &postgres.ChainBlock{
		Hash:             hash,
		Height:           height,
		Timestamp:        time.Unix(int64(timestamp), 0).UTC(),
		TransactionCount: count,
	}
}
