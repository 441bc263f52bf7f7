package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bardlex/turtlego/internal/database/influx"
	"github.com/bardlex/turtlego/internal/database/postgres"
	"github.com/bardlex/turtlego/internal/database/redis"
	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/retry"
)

const source = "mainnet"

// memoryStores implements every store interface over maps
type memoryStores struct {
	mu          sync.Mutex
	blocks      map[uint64]*postgres.ChainBlock
	checkpoint  *redis.Checkpoint
	hashes      []string
	counter     int64
	points      []string
	upsertFails int
	deletes     []uint64
}

func newMemoryStores() *memoryStores {
	return &memoryStores{blocks: make(map[uint64]*postgres.ChainBlock)}
}

func (s *memoryStores) UpsertBlocks(_ context.Context, blocks []*postgres.ChainBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertFails > 0 {
		s.upsertFails--
		return fmt.Errorf("connection reset by peer")
	}
	for _, b := range blocks {
		cp := *b
		s.blocks[b.Height] = &cp
	}
	return nil
}

func (s *memoryStores) GetBlocksByHash(_ context.Context, _ string, hashes []string) ([]*postgres.ChainBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool)
	for _, h := range hashes {
		want[h] = true
	}
	var out []*postgres.ChainBlock
	for _, b := range s.blocks {
		if want[b.Hash] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memoryStores) GetRecentBlocks(_ context.Context, _ string, limit, offset int) ([]*postgres.ChainBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*postgres.ChainBlock
	for _, b := range s.blocks {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Height > all[j].Height })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memoryStores) LatestHeight(_ context.Context, _ string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var top uint64
	for h := range s.blocks {
		if h > top {
			top = h
		}
	}
	return top, len(s.blocks) > 0, nil
}

func (s *memoryStores) DeleteFrom(_ context.Context, _ string, height uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, height)
	var hashes []string
	for h, b := range s.blocks {
		if h >= height {
			hashes = append(hashes, b.Hash)
			delete(s.blocks, h)
		}
	}
	return hashes, nil
}

func (s *memoryStores) ForgetHashes(_ context.Context, _ string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = without(s.hashes, hashes)
	return nil
}

func without(list, drop []string) []string {
	gone := make(map[string]bool, len(drop))
	for _, h := range drop {
		gone[h] = true
	}
	var kept []string
	for _, h := range list {
		if !gone[h] {
			kept = append(kept, h)
		}
	}
	return kept
}

func (s *memoryStores) SaveCheckpoint(_ context.Context, _ string, cp redis.Checkpoint, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &cp
	for _, h := range hashes {
		s.hashes = append([]string{h}, s.hashes...)
	}
	if len(s.hashes) > redis.MaxRecentHashes {
		s.hashes = s.hashes[:redis.MaxRecentHashes]
	}
	return nil
}

func (s *memoryStores) GetCheckpoint(_ context.Context, _ string) (*redis.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		return nil, redis.ErrNotFound
	}
	cp := *s.checkpoint
	return &cp, nil
}

func (s *memoryStores) RecentHashes(_ context.Context, _ string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.hashes) {
		n = len(s.hashes)
	}
	return append([]string(nil), s.hashes[:n]...), nil
}

func (s *memoryStores) IncrementCounter(_ context.Context, _ string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter += delta
	return s.counter, nil
}

func (s *memoryStores) GetCounter(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter, nil
}

func (s *memoryStores) WriteChainState(st influx.ChainState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, fmt.Sprintf("chain:%d", st.Height))
}

func (s *memoryStores) WriteBlock(_ string, height uint64, _ string, _ int, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, fmt.Sprintf("block:%d", height))
}

func (s *memoryStores) WriteSyncPage(_ string, blocks int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, fmt.Sprintf("page:%d", blocks))
}

func (s *memoryStores) Flush() {}

func newTestManager(t *testing.T) (*Manager, *memoryStores) {
	t.Helper()
	stores := newMemoryStores()
	m := NewManagerWithStores(stores, stores, stores, log.Nop())
	m.SetRetryConfig(&retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	return m, stores
}

// chain builds consecutive blocks; fork changes the hashes so they differ from chain(..., "")
func chain(from, to uint64, fork string) []*postgres.ChainBlock {
	var out []*postgres.ChainBlock
	for h := from; h <= to; h++ {
		out = append(out, &postgres.ChainBlock{
			Height:           h,
			Hash:             fmt.Sprintf("%s%0*d", fork, 64-len(fork), h),
			Timestamp:        time.Unix(1512800692+int64(h)*30, 0),
			TransactionCount: int(h % 3),
		})
	}
	return out
}

func TestManager_PositionFresh(t *testing.T) {
	m, _ := newTestManager(t)

	pos, err := m.Position(context.Background(), source)
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if !pos.Fresh || pos.Height != 0 || len(pos.Checkpoints) != 0 {
		t.Errorf("Position() = %+v, want fresh", pos)
	}
}

func TestManager_RecordBlocks(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	res, err := m.RecordBlocks(ctx, source, chain(0, 9, ""))
	if err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	if res.Stored != 10 || res.ReorgDepth != 0 {
		t.Errorf("RecordBlocks() = %+v", res)
	}

	pos, err := m.Position(ctx, source)
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if pos.Fresh || pos.Height != 9 {
		t.Errorf("Position() = %+v, want height 9", pos)
	}
	if len(pos.Checkpoints) != 10 || pos.Checkpoints[0] != pos.Hash {
		t.Errorf("Position().Checkpoints should list the tip first, got %d hashes", len(pos.Checkpoints))
	}
	if stores.counter != 10 {
		t.Errorf("synced counter = %d, want 10", stores.counter)
	}
	if got := stores.blocks[3].Source; got != source {
		t.Errorf("stored Source = %q, want %q", got, source)
	}
	if len(stores.points) != 10 {
		t.Errorf("wrote %d block points, want 10", len(stores.points))
	}
}

func TestManager_RecordBlocksOverlap(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	if _, err := m.RecordBlocks(ctx, source, chain(0, 9, "")); err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}

	// The daemon repeats the checkpoint block at the start of the next page
	res, err := m.RecordBlocks(ctx, source, chain(9, 15, ""))
	if err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	if res.ReorgDepth != 0 {
		t.Errorf("ReorgDepth = %d, want 0 for a repeated block", res.ReorgDepth)
	}
	if len(stores.deletes) != 0 {
		t.Errorf("DeleteFrom called %v", stores.deletes)
	}
	if len(stores.blocks) != 16 {
		t.Errorf("stored %d blocks, want 16", len(stores.blocks))
	}
}

func TestManager_RecordBlocksReorg(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	if _, err := m.RecordBlocks(ctx, source, chain(0, 20, "")); err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}

	// Same blocks up to 17, then a competing branch from 18
	page := append(chain(16, 17, ""), chain(18, 19, "f")...)
	res, err := m.RecordBlocks(ctx, source, page)
	if err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	if res.ReorgDepth != 3 {
		t.Errorf("ReorgDepth = %d, want 3 (heights 18-20)", res.ReorgDepth)
	}
	if diff := cmp.Diff([]uint64{18}, stores.deletes); diff != "" {
		t.Errorf("DeleteFrom calls mismatch (-want +got):\n%s", diff)
	}
	for _, h := range stores.hashes {
		if h == chain(20, 20, "")[0].Hash {
			t.Error("orphaned hash of block 20 is still a checkpoint")
		}
	}
	if _, ok := stores.blocks[20]; ok {
		t.Error("orphaned block 20 is still stored")
	}
	if !strings.HasPrefix(stores.blocks[19].Hash, "f") {
		t.Errorf("block 19 = %s, want the new branch", stores.blocks[19].Hash)
	}
	if stores.checkpoint.Height != 19 {
		t.Errorf("checkpoint height = %d, want 19", stores.checkpoint.Height)
	}
}

func TestManager_RecordBlocksGenesisFork(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	if _, err := m.RecordBlocks(ctx, source, chain(0, 5, "")); err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}

	// A different chain from genesis replaces everything
	res, err := m.RecordBlocks(ctx, source, chain(0, 3, "f"))
	if err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	if res.ReorgDepth != 6 {
		t.Errorf("ReorgDepth = %d, want 6 (heights 0-5)", res.ReorgDepth)
	}
	if diff := cmp.Diff([]uint64{0}, stores.deletes); diff != "" {
		t.Errorf("DeleteFrom calls mismatch (-want +got):\n%s", diff)
	}
	if len(stores.blocks) != 4 {
		t.Errorf("stored %d blocks, want 4", len(stores.blocks))
	}
	for h, b := range stores.blocks {
		if !strings.HasPrefix(b.Hash, "f") {
			t.Errorf("block %d = %s, want the new chain", h, b.Hash)
		}
	}
	if len(stores.hashes) != 4 {
		t.Errorf("checkpoint list has %d hashes, want only the 4 new ones", len(stores.hashes))
	}
	for _, h := range stores.hashes {
		if !strings.HasPrefix(h, "f") {
			t.Errorf("orphaned hash %s is still a checkpoint", h)
		}
	}
}

func TestManager_RecordBlocksValidation(t *testing.T) {
	m, stores := newTestManager(t)

	page := chain(0, 5, "")
	page = append(page[:2], page[3:]...)
	_, err := m.RecordBlocks(context.Background(), source, page)
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Fatalf("RecordBlocks(gap) error = %v, want validation", err)
	}
	if len(stores.blocks) != 0 {
		t.Error("a malformed page must not be stored")
	}

	res, err := m.RecordBlocks(context.Background(), source, nil)
	if err != nil || res.Stored != 0 {
		t.Errorf("RecordBlocks(nil) = %+v, %v", res, err)
	}
}

func TestManager_RecordBlocksRetries(t *testing.T) {
	m, stores := newTestManager(t)
	stores.upsertFails = 2

	res, err := m.RecordBlocks(context.Background(), source, chain(0, 4, ""))
	if err != nil {
		t.Fatalf("RecordBlocks() error = %v, want success on the third attempt", err)
	}
	if res.Stored != 5 {
		t.Errorf("Stored = %d", res.Stored)
	}

	stores.upsertFails = 10
	_, err = m.RecordBlocks(context.Background(), source, chain(5, 6, ""))
	if err == nil {
		t.Fatal("RecordBlocks() should fail once retries are exhausted")
	}
	if !errors.HasType(err, errors.ErrorTypeDatabase) {
		t.Errorf("RecordBlocks() error = %v, want a database error in the chain", err)
	}
	if stores.checkpoint.Height != 4 {
		t.Errorf("checkpoint moved to %d after a failed write", stores.checkpoint.Height)
	}
}

func TestManager_PositionRebuiltFromBlocks(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	if _, err := m.RecordBlocks(ctx, source, chain(0, 99, "")); err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	// Redis flushed
	stores.checkpoint = nil
	stores.hashes = nil

	pos, err := m.Position(ctx, source)
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if pos.Fresh || pos.Height != 99 || pos.Hash != stores.blocks[99].Hash {
		t.Errorf("Position() = height %d hash %s, want the stored tip", pos.Height, pos.Hash)
	}
	if len(pos.Checkpoints) != redis.MaxRecentHashes {
		t.Errorf("Position().Checkpoints has %d hashes, want %d", len(pos.Checkpoints), redis.MaxRecentHashes)
	}
}

func TestManager_Status(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	fresh, err := m.Status(ctx, source, 5)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !fresh.Fresh || fresh.BlocksSynced != 0 || len(fresh.Recent) != 0 {
		t.Errorf("Status() before sync = %+v", fresh)
	}

	if _, err := m.RecordBlocks(ctx, source, chain(0, 19, "")); err != nil {
		t.Fatalf("RecordBlocks() error = %v", err)
	}
	st, err := m.Status(ctx, source, 3)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Fresh || st.Height != 19 || st.BlocksSynced != 20 {
		t.Errorf("Status() = %+v, want height 19 and 20 blocks synced", st)
	}
	var heights []uint64
	for _, b := range st.Recent {
		heights = append(heights, b.Height)
	}
	if diff := cmp.Diff([]uint64{19, 18, 17}, heights); diff != "" {
		t.Errorf("Status().Recent heights mismatch (-want +got):\n%s", diff)
	}

	st, err = m.Status(ctx, source, 0)
	if err != nil || st.Recent != nil {
		t.Errorf("Status(limit 0) = %+v, %v", st, err)
	}
}

func TestManager_HeightHistory(t *testing.T) {
	m, _ := newTestManager(t)

	// memoryStores cannot be read back
	points, err := m.HeightHistory(context.Background(), source, time.Hour)
	if err != nil || points != nil {
		t.Errorf("HeightHistory() = %v, %v", points, err)
	}

	m.Metrics = historyStore{memoryStores: newMemoryStores(), err: stderrors.New("bucket not found")}
	if _, err := m.HeightHistory(context.Background(), source, time.Hour); !errors.IsType(err, errors.ErrorTypeDatabase) {
		t.Errorf("HeightHistory() error = %v, want a database error", err)
	}
}

type historyStore struct {
	*memoryStores
	err error
}

func (h historyStore) GetHeightHistory(context.Context, string, time.Duration) ([]influx.HeightPoint, error) {
	return nil, h.err
}

func TestManager_Metrics(t *testing.T) {
	m, stores := newTestManager(t)

	m.RecordChainState(influx.ChainState{Source: source, Height: 7})
	m.RecordSyncPage(source, 100, time.Second)

	if diff := cmp.Diff([]string{"chain:7", "page:100"}, stores.points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_CloseAndHealth(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Close(); err != nil {
		t.Errorf("Close() with caller-owned stores = %v", err)
	}
	if err := m.Health(context.Background()); err != nil {
		t.Errorf("Health() with caller-owned stores = %v", err)
	}

	var closed []string
	m.closers = []closer{
		{"postgres", func() error { closed = append(closed, "postgres"); return stderrors.New("busy") }},
		{"redis", func() error { closed = append(closed, "redis"); return nil }},
		{"influx", func() error { closed = append(closed, "influx"); return stderrors.New("flush failed") }},
	}
	err := m.Close()
	if diff := cmp.Diff([]string{"postgres", "redis", "influx"}, closed); diff != "" {
		t.Errorf("Close() order mismatch (-want +got):\n%s", diff)
	}
	if err == nil || !strings.Contains(err.Error(), "postgres close: busy") || !strings.Contains(err.Error(), "influx close: flush failed") {
		t.Errorf("Close() error = %v, want both failures", err)
	}

	m.checks = []healthCheck{
		{"redis", func(context.Context) error { return stderrors.New("connection refused") }},
	}
	if err := m.Health(context.Background()); err == nil || !strings.Contains(err.Error(), "redis health check failed") {
		t.Errorf("Health() error = %v", err)
	}
}
