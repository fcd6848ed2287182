package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/monitor"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Position: monitor.Position{
			Symbol:     "BTCUSDT",
			Side:       broker.SideBuy,
			Quantity:   0.5,
			EntryPrice: 100,
			StopLoss:   97,
			TakeProfit: 104,
			OrderID:    "order-1",
			OpenedAt:   time.Now().UTC().Truncate(time.Second),
		},
		State: "IN_POSITION",
	}
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "position.json")
	return NewFileStore(path, logging.New(&logging.Config{Level: "error", JSONFormat: true}))
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()
	orig := testSnapshot()

	require.NoError(t, s.Save(ctx, orig))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, orig.Position.Symbol, loaded.Position.Symbol)
	assert.Equal(t, orig.Position.Side, loaded.Position.Side)
	assert.Equal(t, orig.Position.EntryPrice, loaded.Position.EntryPrice)
	assert.Equal(t, orig.Position.StopLoss, loaded.Position.StopLoss)
	assert.Equal(t, orig.Position.TakeProfit, loaded.Position.TakeProfit)
	assert.Equal(t, orig.Position.Quantity, loaded.Position.Quantity)
	assert.Equal(t, "IN_POSITION", loaded.State)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestFileStoreLoadConsumesSnapshot(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot()))
	_, err := s.Load(ctx)
	require.NoError(t, err)

	// A second load finds nothing: the snapshot is read once.
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, statErr := os.Stat(s.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := newFileStore(t)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileStoreCorruptFileIsPreserved(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o644))

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)

	// The corrupt file stays on disk for inspection.
	_, statErr := os.Stat(s.path)
	assert.NoError(t, statErr)
}

func TestFileStoreClear(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx)) // clearing nothing is fine

	require.NoError(t, s.Save(ctx, testSnapshot()))
	require.NoError(t, s.Clear(ctx))
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "position.json")
	s := NewFileStore(path, logging.New(&logging.Config{Level: "error", JSONFormat: true}))

	require.NoError(t, s.Save(context.Background(), testSnapshot()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
