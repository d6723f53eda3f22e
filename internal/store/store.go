// Package store defines storage interfaces for the coin catalog, the
// dataset snapshot written by the refresh job and the run log.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"cryptodash/internal/domain"
)

// ErrCatalogMissing is returned when no catalog has been built yet.
var ErrCatalogMissing = errors.New("catalog not built")

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DefaultSearchLimit caps the number of catalog entries a search returns.
const DefaultSearchLimit = 20

// CoinStore serves the searchable coin catalog.
type CoinStore interface {
	// ReplaceCoins atomically swaps the whole catalog for coins.
	ReplaceCoins(ctx context.Context, coins []domain.Coin) error

	// SearchCoins returns up to limit coins whose symbol or name starts with
	// query, case-insensitively. An exact symbol match sorts first, then
	// market-cap rank. ErrCatalogMissing is returned for an empty catalog.
	SearchCoins(ctx context.Context, query string, limit int) ([]domain.Coin, error)

	// GetCoin retrieves a single coin by its CoinGecko id.
	GetCoin(ctx context.Context, id string) (*domain.Coin, error)

	// CountCoins returns the number of catalog entries.
	CountCoins(ctx context.Context) (int, error)
}

// SnapshotStore persists the dataset artifact of a refresh run.
type SnapshotStore interface {
	// WriteSnapshot replaces the snapshot with coins.
	WriteSnapshot(ctx context.Context, coins []domain.Coin, at time.Time) error

	// ReadSnapshot returns the last written snapshot, or ErrCatalogMissing.
	ReadSnapshot(ctx context.Context) ([]domain.Coin, error)
}

// RunStore records finished refresh runs.
type RunStore interface {
	// RecordRun persists the final state of a run.
	RecordRun(ctx context.Context, state domain.JobState, coins int) error

	// LastRun returns the most recently finished run, or ErrNotFound.
	LastRun(ctx context.Context) (*RunRecord, error)
}

// RunRecord is one row of the run log.
type RunRecord struct {
	RunID        string
	Status       domain.JobStatus
	Coins        int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}
