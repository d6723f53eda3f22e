package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/domain"
)

var testCoins = []domain.Coin{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Rank: 1, TradableOnBinanceUSDC: true},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Rank: 2, TradableOnBinanceUSDC: true},
	{ID: "bitcoin-cash", Symbol: "BCH", Name: "Bitcoin Cash", Rank: 18, TradableOnBinanceUSDC: true},
	{ID: "bittensor", Symbol: "TAO", Name: "Bittensor", Rank: 30},
	{ID: "bitget-token", Symbol: "BGB", Name: "Bitget Token", Rank: 40},
	{ID: "wrapped-bitcoin", Symbol: "WBTC", Name: "Wrapped Bitcoin", Rank: 15, TradableOnBinanceUSDC: true},
	{ID: "bt-finance", Symbol: "bt", Name: "BT.Finance", Rank: 900},
	{ID: "percent", Symbol: "PCT", Name: "100% Coin", Rank: 0},
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSearchEmptyCatalog(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.SearchCoins(context.Background(), "b", 20)
	assert.ErrorIs(t, err, ErrCatalogMissing)
}

func TestSQLiteSearchPrefix(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceCoins(ctx, testCoins))

	got, err := s.SearchCoins(ctx, "bt", 20)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// Exact symbol first, then symbol/name prefix matches by rank.
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"bt-finance", "bitcoin"}, ids)

	got, err = s.SearchCoins(ctx, "BIT", 20)
	require.NoError(t, err)
	ids = ids[:0]
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"bitcoin", "bitcoin-cash", "bittensor", "bitget-token"}, ids)

	got, err = s.SearchCoins(ctx, "btc", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.True(t, got[0].TradableOnBinanceUSDC)
}

func TestSQLiteSearchLimitAndEscaping(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceCoins(ctx, testCoins))

	got, err := s.SearchCoins(ctx, "b", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// "%" is literal, not a wildcard.
	got, err = s.SearchCoins(ctx, "%", 20)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.SearchCoins(ctx, "100%", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "percent", got[0].ID)
}

func TestSQLiteReplaceCoins(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceCoins(ctx, testCoins))

	n, err := s.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testCoins), n)

	require.NoError(t, s.ReplaceCoins(ctx, testCoins[:2]))
	n, err = s.CountCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err := s.GetCoin(ctx, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "ETH", c.Symbol)
	assert.Equal(t, 2, c.Rank)

	_, err = s.GetCoin(ctx, "bittensor")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRunLog(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.LastRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, domain.JobState{
		RunID: "run-1", Status: domain.JobComplete,
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}, 812))
	require.NoError(t, s.RecordRun(ctx, domain.JobState{
		RunID: "run-2", Status: domain.JobError, ErrorMessage: "boom",
		StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour + time.Second),
	}, 0))

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", last.RunID)
	assert.Equal(t, domain.JobError, last.Status)
	assert.Equal(t, "boom", last.ErrorMessage)
	assert.Equal(t, start.Add(time.Hour), last.StartedAt)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")
	assert.Equal(t, filepath.Join("/data", "coins.parquet"), ps.Path())
}

func TestParquetSnapshotMissing(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	_, err := ps.ReadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrCatalogMissing)
}

func TestParquetSnapshotRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	ps := NewParquetStore(dir)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ps.WriteSnapshot(ctx, testCoins, at))

	got, err := ps.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(testCoins))

	// Ranked coins in rank order, unranked last.
	assert.Equal(t, "bitcoin", got[0].ID)
	assert.Equal(t, "ethereum", got[1].ID)
	assert.Equal(t, "percent", got[len(got)-1].ID)
	assert.Equal(t, "BT", got[len(got)-2].Symbol)

	// Overwrite replaces rather than merges.
	require.NoError(t, ps.WriteSnapshot(ctx, testCoins[:1], at))
	got, err = ps.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.FileExists(t, ps.Path())
	assert.NoFileExists(t, ps.Path()+".tmp")
}
