package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"cryptodash/internal/domain"
)

// Compile-time interface check.
var _ SnapshotStore = (*ParquetStore)(nil)

// SnapshotFile is the name of the dataset artifact under the data dir.
const SnapshotFile = "coins.parquet"

// ParquetStore implements SnapshotStore using a Parquet file on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CoinRecord is the Parquet schema of one catalog entry.
type CoinRecord struct {
	ID        string `parquet:"id"`
	Symbol    string `parquet:"symbol"`
	Name      string `parquet:"name"`
	Rank      int64  `parquet:"rank"`
	Tradable  bool   `parquet:"is_tradable"`
	UpdatedAt int64  `parquet:"updated_at,timestamp(millisecond)"` // Unix ms
}

// Path returns the snapshot location.
// Layout: <DataDir>/coins.parquet
func (s *ParquetStore) Path() string {
	return filepath.Join(s.DataDir, SnapshotFile)
}

// WriteSnapshot writes coins sorted by rank. The file is written next to
// the destination and renamed into place so readers never see a partial
// snapshot.
func (s *ParquetStore) WriteSnapshot(_ context.Context, coins []domain.Coin, at time.Time) error {
	records := make([]CoinRecord, 0, len(coins))
	for _, c := range coins {
		records = append(records, CoinRecord{
			ID:        c.ID,
			Symbol:    strings.ToUpper(c.Symbol),
			Name:      c.Name,
			Rank:      int64(c.Rank),
			Tradable:  c.TradableOnBinanceUSDC,
			UpdatedAt: at.UnixMilli(),
		})
	}
	sortCoinRecords(records)

	path := s.Path()
	tmp := path + ".tmp"
	if err := writeParquetFile(tmp, records); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "writing snapshot")
	}
	return errors.Wrap(os.Rename(tmp, path), "renaming snapshot")
}

// ReadSnapshot reads the last snapshot back into domain coins.
func (s *ParquetStore) ReadSnapshot(_ context.Context) ([]domain.Coin, error) {
	path := s.Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrCatalogMissing
	}

	records, err := readParquetFile[CoinRecord](path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	coins := make([]domain.Coin, 0, len(records))
	for _, r := range records {
		coins = append(coins, domain.Coin{
			ID:                    r.ID,
			Symbol:                r.Symbol,
			Name:                  r.Name,
			Rank:                  int(r.Rank),
			TradableOnBinanceUSDC: r.Tradable,
		})
	}
	return coins, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// sortCoinRecords orders by rank with unranked coins last, then by id.
func sortCoinRecords(records []CoinRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].Rank, records[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return records[i].ID < records[j].ID
	})
}
