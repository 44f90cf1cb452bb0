package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-stream-lab/internal/domain"
)

func TestRawTradeStore_InsertAndGetByMint(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRawTradeStore(conn)
	ctx := context.Background()

	trades := []*domain.RawTrade{
		{Mint: "mint-1", Side: domain.TradeSideSell, Trader: "w2", SolAmount: 0.5, Price: 1.1, Signature: "sig2", Timestamp: 2000, PhaseID: 1},
		{Mint: "mint-1", Side: domain.TradeSideBuy, Trader: "w1", SolAmount: 1.5, Price: 1.2, Signature: "sig1", Timestamp: 1000, PhaseID: 1},
		{Mint: "mint-2", Side: domain.TradeSideBuy, Trader: "w3", SolAmount: 2.0, Price: 0.9, Signature: "sig3", Timestamp: 1000, PhaseID: 2},
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by timestamp ASC.
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, domain.TradeSideBuy, got[0].Side)
	assert.Equal(t, "w1", got[0].Trader)
	assert.Equal(t, 1.5, got[0].SolAmount)
	assert.Equal(t, 1.2, got[0].Price)
	assert.Equal(t, "sig1", got[0].Signature)
	assert.Equal(t, 1, got[0].PhaseID)

	assert.Equal(t, int64(2000), got[1].Timestamp)
	assert.Equal(t, domain.TradeSideSell, got[1].Side)
}

func TestRawTradeStore_InsertEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRawTradeStore(conn)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}
