package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bardlex/turtlego/internal/database"
	"github.com/bardlex/turtlego/internal/database/influx"
	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/internal/database/redis"
)

// SyncStore is the read side of the chainsync databases
type SyncStore interface {
	Status(ctx context.Context, source string, limit int) (*database.SyncStatus, error)
	HeightHistory(ctx context.Context, source string, duration time.Duration) ([]influx.HeightPoint, error)
	Close() error
}

var _ SyncStore = (*database.Manager)(nil)

type syncReport struct {
	*database.SyncStatus
	History []influx.HeightPoint `json:"history,omitempty"`
}

func (c *command) initSyncCmd() {
	s := &cobra.Command{
		Use:   "sync",
		Short: "Inspect what chainsync has stored",
	}

	var (
		source  string
		recent  int
		history time.Duration
	)
	status := &cobra.Command{
		Use:   "status",
		Short: "Print the stored tip, block counter and recent blocks of a source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.syncStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					c.logger.WithError(err).Warn("failed to close databases")
				}
			}()

			ctx := contextOf(cmd)
			st, err := store.Status(ctx, source, recent)
			if err != nil {
				return err
			}
			report := syncReport{SyncStatus: st}
			if history > 0 {
				if report.History, err = store.HeightHistory(ctx, source, history); err != nil {
					return err
				}
			}
			return printJSON(cmd, report)
		},
	}
	status.Flags().StringVar(&source, "source", c.cfg.SyncSource, "name the chain was synced under")
	status.Flags().IntVar(&recent, "recent", 10, "number of recent blocks to list")
	status.Flags().DurationVar(&history, "history", 0, "include the height history over this window")

	s.AddCommand(status)
	c.root.AddCommand(s)
}

// syncStore opens the databases named by the configuration unless a store was injected
func (c *command) syncStore() (SyncStore, error) {
	if c.store != nil {
		return c.store, nil
	}
	return database.NewManager(&database.Config{
		Postgres: postgres.DefaultConfig(c.cfg.PostgresURL),
		Redis:    &redis.Config{URL: c.cfg.RedisURL},
		Influx: &influx.Config{
			URL:    c.cfg.InfluxURL,
			Token:  c.cfg.InfluxToken,
			Org:    c.cfg.InfluxOrg,
			Bucket: c.cfg.InfluxBucket,
		},
	}, c.logger)
}
