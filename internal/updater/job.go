// Package updater implements the data-refresh job: it reads the tradable
// pairs from Binance, pages through the CoinGecko market list, writes the
// dataset snapshot and loads it into the searchable catalog.
package updater

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cryptodash/internal/domain"
	"cryptodash/internal/exchange"
	"cryptodash/internal/metrics"
	"cryptodash/internal/store"
)

// Stage labels reported through the tracker.
const (
	StageBinance = "Fetching Binance symbols"
	StageProcess = "Processing and saving data"
	StageDone    = "Done"
	StageNoData  = "No data fetched"
)

func stagePage(page, total int) string {
	return fmt.Sprintf("Fetching CoinGecko page %d/%d", page, total)
}

// PairSource lists the tradable spot pairs of an exchange.
type PairSource interface {
	TradablePairs(ctx context.Context) (map[string]bool, error)
	Quote() string
}

// MarketSource pages through coins ordered by market cap.
type MarketSource interface {
	Markets(ctx context.Context, page, perPage int) ([]exchange.Market, error)
}

// Deps are the collaborators of a Runner. Runs, Metrics and OnCatalogLoaded
// are optional.
type Deps struct {
	Tracker         *Tracker
	Pairs           PairSource
	Markets         MarketSource
	Snapshots       store.SnapshotStore
	Catalog         store.CoinStore
	Runs            store.RunStore
	Metrics         *metrics.Recorder
	Logger          *zap.Logger
	OnCatalogLoaded func(coins int)
}

// Options bound the size of a run.
type Options struct {
	PerPage  int // coins per CoinGecko page (max 250)
	MaxPages int
}

// Runner starts refresh runs in the background.
type Runner struct {
	ctx  context.Context
	deps Deps
	opts Options
	log  *zap.Logger
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewRunner creates a Runner. Runs are bound to ctx, not to the request
// that started them.
func NewRunner(ctx context.Context, deps Deps, opts Options) *Runner {
	if opts.PerPage <= 0 {
		opts.PerPage = 250
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 12
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, deps: deps, opts: opts, log: log.Named("updater"), now: time.Now}
}

// Tracker returns the progress tracker shared with the status endpoint.
func (r *Runner) Tracker() *Tracker {
	return r.deps.Tracker
}

// Status returns a copy of the current progress.
func (r *Runner) Status() domain.JobState {
	return r.deps.Tracker.State()
}

// Start begins a run in the background and returns its id, or
// ErrAlreadyRunning.
func (r *Runner) Start() (string, error) {
	runID := uuid.NewString()
	if err := r.deps.Tracker.Begin(runID); err != nil {
		return "", err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(runID)
	}()
	return runID, nil
}

// Wait blocks until the background run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Restore loads the last snapshot into the catalog. It returns
// store.ErrCatalogMissing when no snapshot was ever written.
func (r *Runner) Restore(ctx context.Context) (int, error) {
	coins, err := r.deps.Snapshots.ReadSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.load(ctx, coins); err != nil {
		return 0, err
	}
	return len(coins), nil
}

func (r *Runner) run(runID string) {
	log := r.log.With(zap.String("run_id", runID))
	log.Info("data refresh started")
	started := r.now()

	n, stage, err := r.execute(r.ctx)

	var final domain.JobState
	if err != nil {
		final = r.deps.Tracker.Fail(err)
		log.Error("data refresh failed", zap.Error(err))
	} else {
		final = r.deps.Tracker.Complete(stage)
		log.Info("data refresh complete", zap.Int("coins", n), zap.String("stage", stage))
	}

	r.deps.Metrics.RecordRefresh(string(final.Status), r.now().Sub(started).Seconds())
	if r.deps.Runs != nil {
		if err := r.deps.Runs.RecordRun(context.WithoutCancel(r.ctx), final, n); err != nil {
			log.Warn("recording run failed", zap.Error(err))
		}
	}
}

// execute performs one run and returns the catalog size and final stage.
func (r *Runner) execute(ctx context.Context) (int, string, error) {
	tr := r.deps.Tracker

	tr.SetStage(StageBinance, 0, 0)
	pairs, err := r.deps.Pairs.TradablePairs(ctx)
	if err != nil {
		r.log.Warn("binance unavailable, using fallback pairs", zap.Error(err))
		pairs = exchange.MockPairs(r.deps.Pairs.Quote())
	}
	r.log.Info("tradable pairs", zap.Int("count", len(pairs)))

	var markets []exchange.Market
	for page := 1; page <= r.opts.MaxPages; page++ {
		tr.SetStage(stagePage(page, r.opts.MaxPages), page, r.opts.MaxPages)
		rows, err := r.deps.Markets.Markets(ctx, page, r.opts.PerPage)
		if err != nil {
			return 0, "", err
		}
		if len(rows) == 0 {
			r.log.Info("no more coingecko data", zap.Int("page", page))
			break
		}
		markets = append(markets, rows...)
	}
	if len(markets) == 0 {
		return 0, StageNoData, nil
	}

	tr.SetStage(StageProcess, 0, len(markets))
	coins := buildCoins(markets, pairs, r.deps.Pairs.Quote(), tr.Advance)

	if err := r.deps.Snapshots.WriteSnapshot(ctx, coins, r.now()); err != nil {
		return 0, "", err
	}
	if err := r.load(ctx, coins); err != nil {
		return 0, "", err
	}
	return len(coins), StageDone, nil
}

func (r *Runner) load(ctx context.Context, coins []domain.Coin) error {
	if err := r.deps.Catalog.ReplaceCoins(ctx, coins); err != nil {
		return err
	}
	r.deps.Metrics.SetCatalogSize(len(coins))
	if r.deps.OnCatalogLoaded != nil {
		r.deps.OnCatalogLoaded(len(coins))
	}
	return nil
}

// buildCoins turns market rows into catalog entries. Rows missing an id,
// symbol or name are skipped and duplicate ids keep their first row.
func buildCoins(markets []exchange.Market, pairs map[string]bool, quote string, progress func(int)) []domain.Coin {
	seen := make(map[string]struct{}, len(markets))
	coins := make([]domain.Coin, 0, len(markets))
	for i, m := range markets {
		progress(i + 1)

		symbol := strings.ToUpper(strings.TrimSpace(m.Symbol))
		if m.ID == "" || symbol == "" || m.Name == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		coins = append(coins, domain.Coin{
			ID:                    m.ID,
			Symbol:                symbol,
			Name:                  m.Name,
			Rank:                  m.MarketCapRank,
			TradableOnBinanceUSDC: pairs[symbol+strings.ToUpper(quote)],
		})
	}
	return coins
}
