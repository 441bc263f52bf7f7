package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = stderrors.New("not found")

// ChainBlockRepository handles chain block storage
type ChainBlockRepository struct {
	db *sql.DB
}

// NewChainBlockRepository creates a new chain block repository
func NewChainBlockRepository(db *sql.DB) *ChainBlockRepository {
	return &ChainBlockRepository{db: db}
}

// UpsertBlocks stores a page of blocks in one transaction. A block at an already
// stored height replaces the old row, which is how reorganisations are absorbed.
func (r *ChainBlockRepository) UpsertBlocks(ctx context.Context, blocks []*ChainBlock) (err error) {
	if len(blocks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chain_blocks (source, height, hash, timestamp, transaction_count, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source, height) DO UPDATE
		SET hash = EXCLUDED.hash,
		    timestamp = EXCLUDED.timestamp,
		    transaction_count = EXCLUDED.transaction_count,
		    synced_at = EXCLUDED.synced_at
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("failed to prepare block upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	now := time.Now()
	for _, b := range blocks {
		if err = stmt.QueryRowContext(ctx,
			b.Source, int64(b.Height), b.Hash, b.Timestamp, b.TransactionCount, now,
		).Scan(&b.ID); err != nil {
			return fmt.Errorf("failed to upsert block %d: %w", b.Height, err)
		}
		b.SyncedAt = now
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit blocks: %w", err)
	}
	return nil
}

// GetBlockByHeight retrieves the stored block at height
func (r *ChainBlockRepository) GetBlockByHeight(ctx context.Context, source string, height uint64) (*ChainBlock, error) {
	query := `
		SELECT id, source, height, hash, timestamp, transaction_count, synced_at
		FROM chain_blocks WHERE source = $1 AND height = $2`

	block, err := scanBlock(r.db.QueryRowContext(ctx, query, source, int64(height)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

// GetBlocksByHash retrieves the stored blocks among hashes, in height order
func (r *ChainBlockRepository) GetBlocksByHash(ctx context.Context, source string, hashes []string) ([]*ChainBlock, error) {
	query := `
		SELECT id, source, height, hash, timestamp, transaction_count, synced_at
		FROM chain_blocks WHERE source = $1 AND hash = ANY($2)
		ORDER BY height`

	return r.query(ctx, query, source, pq.Array(hashes))
}

// GetRecentBlocks retrieves the highest stored blocks with pagination
func (r *ChainBlockRepository) GetRecentBlocks(ctx context.Context, source string, limit, offset int) ([]*ChainBlock, error) {
	query := `
		SELECT id, source, height, hash, timestamp, transaction_count, synced_at
		FROM chain_blocks WHERE source = $1
		ORDER BY height DESC
		LIMIT $2 OFFSET $3`

	return r.query(ctx, query, source, limit, offset)
}

// LatestHeight returns the highest stored height, and false when nothing is stored
func (r *ChainBlockRepository) LatestHeight(ctx context.Context, source string) (uint64, bool, error) {
	var height sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(height) FROM chain_blocks WHERE source = $1`, source).Scan(&height)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest height: %w", err)
	}
	if !height.Valid {
		return 0, false, nil
	}
	return uint64(height.Int64), true, nil
}

// DeleteFrom removes every block at or above height and returns the removed hashes
func (r *ChainBlockRepository) DeleteFrom(ctx context.Context, source string, height uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM chain_blocks WHERE source = $1 AND height >= $2 RETURNING hash`, source, int64(height))
	if err != nil {
		return nil, fmt.Errorf("failed to delete blocks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan deleted hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete blocks: %w", err)
	}
	return hashes, nil
}

func (r *ChainBlockRepository) query(ctx context.Context, query string, args ...any) ([]*ChainBlock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var blocks []*ChainBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(s scanner) (*ChainBlock, error) {
	var height int64
	block := &ChainBlock{}
	if err := s.Scan(
		&block.ID, &block.Source, &height, &block.Hash, &block.Timestamp,
		&block.TransactionCount, &block.SyncedAt,
	); err != nil {
		return nil, err
	}
	block.Height = uint64(height)
	return block, nil
}
