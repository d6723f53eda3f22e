// Package suggest turns search-box input into debounced pair lookups.
package suggest

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/internal/debounce"
	"cryptodash/internal/refresh"
	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

// Searcher looks up pairs by symbol or name prefix.
type Searcher interface {
	SearchPairs(ctx context.Context, query string) ([]cryptodash.Suggestion, error)
}

// ResultMsg carries the outcome of one dispatched search.
type ResultMsg struct {
	seq         int
	Query       string
	Suggestions []cryptodash.Suggestion
	Err         error
}

// Fetcher owns the suggestion list for the search box. Only the most
// recently dispatched search may change the list, and only while its query
// is still the current one.
type Fetcher struct {
	ctx     context.Context
	api     Searcher
	gate    *debounce.Gate[string]
	log     *zap.Logger
	query   string
	seq     int
	loading bool
	items   []cryptodash.Suggestion
	lastErr error
}

// New creates a fetcher with the given debounce delay.
func New(ctx context.Context, api Searcher, delay time.Duration, tick ticker.Func, log *zap.Logger) *Fetcher {
	return &Fetcher{
		ctx:  ctx,
		api:  api,
		gate: debounce.New[string](delay, tick),
		log:  log,
	}
}

// Query returns the current search text.
func (f *Fetcher) Query() string { return f.query }

// Suggestions returns the current list.
func (f *Fetcher) Suggestions() []cryptodash.Suggestion { return f.items }

// Loading reports whether the latest search is in flight.
func (f *Fetcher) Loading() bool { return f.loading }

// Err returns the failure of the last applied search, if any.
func (f *Fetcher) Err() error { return f.lastErr }

// SetQuery records new input. An empty query clears the list immediately
// and issues no request.
func (f *Fetcher) SetQuery(q string) tea.Cmd {
	f.query = q
	if q == "" {
		f.gate.Cancel()
		f.items = nil
		f.lastErr = nil
		f.loading = false
		return nil
	}
	return f.gate.Schedule(q)
}

// Clear empties the query and the list, as after a selection.
func (f *Fetcher) Clear() {
	f.SetQuery("")
}

// Cancel drops any pending debounce timer. Used on teardown.
func (f *Fetcher) Cancel() {
	f.gate.Cancel()
}

// Update handles debounce fires and search results.
func (f *Fetcher) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case debounce.FireMsg[string]:
		q, ok := f.gate.Fire(msg)
		if !ok {
			return nil
		}
		return f.dispatch(q)

	case ResultMsg:
		if msg.seq != f.seq {
			return nil
		}
		f.loading = false
		if msg.Query != f.query {
			return nil
		}
		if msg.Err != nil {
			f.items = nil
			f.lastErr = msg.Err
			if cryptodash.IsDatasetMissing(msg.Err) {
				f.log.Info("dataset missing, requesting refresh", zap.String("query", msg.Query))
				return func() tea.Msg { return refresh.InitiateMsg{Auto: true} }
			}
			f.log.Warn("searching pairs", zap.String("query", msg.Query), zap.Error(msg.Err))
			return nil
		}
		f.items = msg.Suggestions
		f.lastErr = nil
	}
	return nil
}

func (f *Fetcher) dispatch(q string) tea.Cmd {
	f.seq++
	f.loading = true
	seq, ctx, api := f.seq, f.ctx, f.api
	return func() tea.Msg {
		items, err := api.SearchPairs(ctx, q)
		return ResultMsg{seq: seq, Query: q, Suggestions: items, Err: err}
	}
}
