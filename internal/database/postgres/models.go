package postgres

import (
	"time"
)

// ChainBlock is a block chainsync has stored. Source names the daemon it came from,
// so several networks or nodes can share one table.
type ChainBlock struct {
	ID               int64     `db:"id" json:"-"`
	Source           string    `db:"source" json:"source"`
	Height           uint64    `db:"height" json:"height"`
	Hash             string    `db:"hash" json:"hash"`
	Timestamp        time.Time `db:"timestamp" json:"timestamp"`
	TransactionCount int       `db:"transaction_count" json:"transactionCount"`
	SyncedAt         time.Time `db:"synced_at" json:"syncedAt"`
}
