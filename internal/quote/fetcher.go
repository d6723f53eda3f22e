// Package quote fetches the price of the selected pair.
package quote

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/pkg/cryptodash"
)

const msgPriceFailed = "Could not fetch the price."

// Pricer returns a quote for a pair.
type Pricer interface {
	GetPrice(ctx context.Context, symbol, coinID string, tradable bool) (cryptodash.PriceQuote, error)
}

// ResultMsg carries the outcome of one price request.
type ResultMsg struct {
	seq   int
	Quote cryptodash.PriceQuote
	Err   error
}

// Fetcher holds the selected pair and its quote. A result for a selection
// that has since been replaced is dropped.
type Fetcher struct {
	ctx      context.Context
	api      Pricer
	log      *zap.Logger
	seq      int
	selected *cryptodash.Suggestion
	quote    *cryptodash.PriceQuote
	errText  string
	loading  bool
}

// New creates an empty fetcher.
func New(ctx context.Context, api Pricer, log *zap.Logger) *Fetcher {
	return &Fetcher{ctx: ctx, api: api, log: log}
}

func (f *Fetcher) Selected() *cryptodash.Suggestion { return f.selected }
func (f *Fetcher) Quote() *cryptodash.PriceQuote    { return f.quote }
func (f *Fetcher) Error() string                    { return f.errText }
func (f *Fetcher) Loading() bool                    { return f.loading }

// Select records s as the selected pair and requests its price. One
// attempt is made; there is no retry.
func (f *Fetcher) Select(s cryptodash.Suggestion) tea.Cmd {
	f.selected = &s
	f.quote = nil
	f.errText = ""
	f.loading = true
	f.seq++

	seq, ctx, api := f.seq, f.ctx, f.api
	return func() tea.Msg {
		q, err := api.GetPrice(ctx, s.Symbol, s.ID, s.Tradable)
		return ResultMsg{seq: seq, Quote: q, Err: err}
	}
}

// Reselect requests the price of the current selection again.
func (f *Fetcher) Reselect() tea.Cmd {
	if f.selected == nil {
		return nil
	}
	return f.Select(*f.selected)
}

// Update applies price results.
func (f *Fetcher) Update(msg tea.Msg) tea.Cmd {
	res, ok := msg.(ResultMsg)
	if !ok || res.seq != f.seq {
		return nil
	}
	f.loading = false
	if res.Err != nil {
		f.errText = cryptodash.DetailOrDefault(res.Err, msgPriceFailed)
		f.log.Warn("fetching price", zap.String("symbol", f.selected.Symbol), zap.Error(res.Err))
		return nil
	}
	q := res.Quote
	f.quote = &q
	return nil
}
