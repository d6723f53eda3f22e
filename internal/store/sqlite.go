package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"cryptodash/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CoinStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS coins (
	id       TEXT PRIMARY KEY,
	symbol   TEXT NOT NULL,
	name     TEXT NOT NULL,
	rank     INTEGER NOT NULL DEFAULT 0,
	tradable INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_coins_symbol ON coins(symbol COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_coins_name ON coins(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS refresh_runs (
	run_id        TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	coins         INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL
);
`

// SQLiteStore implements CoinStore and RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbPath)
	}
	// One writer at a time; the job swaps the catalog while handlers read.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// CoinStore implementation
// ---------------------------------------------------------------------------

// ReplaceCoins deletes the catalog and inserts coins in one transaction.
func (s *SQLiteStore) ReplaceCoins(ctx context.Context, coins []domain.Coin) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM coins`); err != nil {
		return errors.Wrap(err, "clearing coins")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO coins (id, symbol, name, rank, tradable) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()

	for _, c := range coins {
		if _, err := stmt.ExecContext(ctx, c.ID, strings.ToUpper(c.Symbol), c.Name, c.Rank, c.TradableOnBinanceUSDC); err != nil {
			return errors.Wrapf(err, "inserting %s", c.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// SearchCoins returns coins whose symbol or name starts with query.
func (s *SQLiteStore) SearchCoins(ctx context.Context, query string, limit int) ([]domain.Coin, error) {
	n, err := s.CountCoins(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrCatalogMissing
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query = strings.TrimSpace(query)
	pattern := escapeLike(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, name, rank, tradable FROM coins
		WHERE symbol LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY CASE WHEN symbol = upper(?) THEN 0 ELSE 1 END, rank = 0, rank, symbol
		LIMIT ?`,
		pattern, pattern, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "searching coins")
	}
	defer rows.Close()

	out := []domain.Coin{}
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterating coins")
}

// GetCoin retrieves a single coin by id.
func (s *SQLiteStore) GetCoin(ctx context.Context, id string) (*domain.Coin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, rank, tradable FROM coins WHERE id = ?`, id)
	c, err := scanCoin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCoins returns the number of catalog entries.
func (s *SQLiteStore) CountCoins(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coins`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting coins")
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// RecordRun persists the final state of a refresh run.
func (s *SQLiteStore) RecordRun(ctx context.Context, state domain.JobState, coins int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO refresh_runs (run_id, status, coins, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.RunID, string(state.Status), coins, state.ErrorMessage,
		state.StartedAt.UnixMilli(), state.FinishedAt.UnixMilli())
	return errors.Wrapf(err, "recording run %s", state.RunID)
}

// LastRun returns the most recently finished run.
func (s *SQLiteStore) LastRun(ctx context.Context) (*RunRecord, error) {
	var (
		r                 RunRecord
		status            string
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, coins, error_message, started_at, finished_at
		FROM refresh_runs ORDER BY finished_at DESC LIMIT 1`).
		Scan(&r.RunID, &status, &r.Coins, &r.ErrorMessage, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading last run")
	}
	r.Status = domain.JobStatus(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	return &r, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanCoin(sc scanner) (domain.Coin, error) {
	var c domain.Coin
	if err := sc.Scan(&c.ID, &c.Symbol, &c.Name, &c.Rank, &c.TradableOnBinanceUSDC); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, errors.Wrap(err, "scanning coin")
	}
	return c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes query literal inside a LIKE pattern.
func escapeLike(query string) string {
	return likeEscaper.Replace(query)
}
