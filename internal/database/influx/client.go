// Package influx provides the InfluxDB client for chain time series.
// It records heights, difficulty and sync throughput as chainsync follows a daemon.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
	errs     <-chan error
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
		errs:     writeAPI.Errors(),
	}, nil
}

// Close flushes pending points and closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// WriteErrors delivers asynchronous write failures. The channel must be drained.
func (c *Client) WriteErrors() <-chan error {
	return c.errs
}

// Chain metrics

// ChainState is one observation of a daemon's view of the chain
type ChainState struct {
	Source        string
	Height        uint64
	NetworkHeight uint64
	Difficulty    uint64
	Synced        bool
	Time          time.Time
}

// WriteChainState records heights and difficulty for a source
func (c *Client) WriteChainState(s ChainState) {
	c.writeAPI.WritePoint(ChainStatePoint(s))
}

// WriteBlock records one stored block
func (c *Client) WriteBlock(source string, height uint64, hash string, transactions int, ts time.Time) {
	c.writeAPI.WritePoint(BlockPoint(source, height, hash, transactions, ts))
}

// WriteSyncPage records the throughput of one sync page
func (c *Client) WriteSyncPage(source string, blocks int, duration time.Duration) {
	tags := map[string]string{"source": source}
	fields := map[string]any{
		"blocks":      blocks,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}
	c.writeAPI.WritePoint(write.NewPoint("sync_pages", tags, fields, time.Now()))
}

// ChainStatePoint builds the "chain" measurement for s
func ChainStatePoint(s ChainState) *write.Point {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	tags := map[string]string{
		"source": s.Source,
		"synced": strconv.FormatBool(s.Synced),
	}
	fields := map[string]any{
		"height":         int64(s.Height),
		"network_height": int64(s.NetworkHeight),
		"difficulty":     int64(s.Difficulty),
		"behind":         int64(s.NetworkHeight) - int64(s.Height),
	}
	return write.NewPoint("chain", tags, fields, s.Time)
}

// BlockPoint builds the "blocks" measurement, timestamped with the block's own time
func BlockPoint(source string, height uint64, hash string, transactions int, ts time.Time) *write.Point {
	tags := map[string]string{"source": source}
	fields := map[string]any{
		"height":       int64(height),
		"hash":         hash,
		"transactions": transactions,
	}
	return write.NewPoint("blocks", tags, fields, ts)
}

// Query methods

// HeightPoint is a height sample at a point in time
type HeightPoint struct {
	Time   time.Time `json:"time"`
	Height int64     `json:"height"`
}

// GetHeightHistory retrieves the height of source over the last duration
func (c *Client) GetHeightHistory(ctx context.Context, source string, duration time.Duration) ([]HeightPoint, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "chain")
		|> filter(fn: (r) => r.source == "%s")
		|> filter(fn: (r) => r._field == "height")
		|> aggregateWindow(every: 1m, fn: max, createEmpty: false)
	`, c.bucket, duration.String(), source)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query height history: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	var points []HeightPoint
	for result.Next() {
		record := result.Record()
		if value, ok := record.Value().(int64); ok {
			points = append(points, HeightPoint{
				Time:   record.Time(),
				Height: value,
			})
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return points, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
