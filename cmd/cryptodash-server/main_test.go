package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryptodash/internal/config"
	"cryptodash/internal/domain"
	"cryptodash/internal/store"
	"cryptodash/internal/updater"
)

func TestRunReturnsStorageError(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Storage.DataDir = filepath.Join(blocker, "data")

	err = run(cfg, false, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating data dir")
}

func TestRestoreCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog, err := store.NewSQLiteStore(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()
	runner := updater.NewRunner(context.Background(), updater.Deps{
		Tracker:   updater.NewTracker(),
		Snapshots: store.NewParquetStore(dir),
		Catalog:   catalog,
	}, updater.Options{})

	var ready []int
	restoreCatalog(context.Background(), runner, catalog, false, func(n int) { ready = append(ready, n) }, zap.NewNop())
	assert.Empty(t, ready)
	assert.False(t, runner.Status().Running())

	require.NoError(t, catalog.ReplaceCoins(context.Background(), []domain.Coin{{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Rank: 1}}))
	restoreCatalog(context.Background(), runner, catalog, false, func(n int) { ready = append(ready, n) }, zap.NewNop())
	assert.Equal(t, []int{1}, ready)
}
