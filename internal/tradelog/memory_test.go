package tradelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/broker"
)

func openEntry(symbol string) *Entry {
	return &Entry{
		Symbol:     symbol,
		Side:       broker.SideBuy,
		Quantity:   0.5,
		EntryPrice: 100,
		StopLoss:   97,
		TakeProfit: 104,
	}
}

func TestMemoryRecorderOpenClose(t *testing.T) {
	r := NewMemoryRecorder(10)
	ctx := context.Background()

	entry := openEntry("BTCUSDT")
	require.NoError(t, r.Open(ctx, entry))
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, StatusOpen, entry.Status)
	assert.False(t, entry.EntryTime.IsZero())

	entry.ExitPrice = 104
	entry.ExitReason = "TAKE_PROFIT"
	entry.PnL = 2
	require.NoError(t, r.Close(ctx, entry))
	assert.Equal(t, StatusClosed, entry.Status)

	recent, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, StatusClosed, recent[0].Status)
	assert.Equal(t, 2.0, recent[0].PnL)
}

func TestMemoryRecorderCloseUnknown(t *testing.T) {
	r := NewMemoryRecorder(10)
	err := r.Close(context.Background(), &Entry{ID: 99})
	assert.Error(t, err)
}

func TestMemoryRecorderBounded(t *testing.T) {
	r := NewMemoryRecorder(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := openEntry("BTCUSDT")
		e.EntryTime = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, r.Open(ctx, e))
	}

	recent, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	// Newest first, oldest two dropped.
	assert.Equal(t, int64(5), recent[0].ID)
	assert.Equal(t, int64(3), recent[2].ID)
}
