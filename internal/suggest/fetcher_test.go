package suggest

import (
	"context"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryptodash/internal/debounce"
	"cryptodash/internal/refresh"
	"cryptodash/internal/ticker"
	"cryptodash/pkg/cryptodash"
)

type fakeSearcher struct {
	queries []string
	results map[string][]cryptodash.Suggestion
	err     error
}

func (f *fakeSearcher) SearchPairs(_ context.Context, q string) ([]cryptodash.Suggestion, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q], nil
}

var btc = cryptodash.Suggestion{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", Tradable: true}

func newTestFetcher(api Searcher) (*Fetcher, *ticker.Recorder) {
	rec := &ticker.Recorder{}
	return New(context.Background(), api, 0, rec.Tick, zap.NewNop()), rec
}

func TestTypingBurstDispatchesOnce(t *testing.T) {
	api := &fakeSearcher{results: map[string][]cryptodash.Suggestion{"BTC": {btc}}}
	f, rec := newTestFetcher(api)

	f.SetQuery("B")
	f.SetQuery("BT")
	f.SetQuery("BTC")
	require.Len(t, rec.Ticks, 3)

	var cmds []tea.Cmd
	for _, tk := range rec.Ticks {
		assert.Equal(t, debounce.DefaultDelay, tk.Delay)
		if cmd := f.Update(tk.Fire()); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	require.Len(t, cmds, 1)
	assert.True(t, f.Loading())

	f.Update(cmds[0]())
	assert.Equal(t, []string{"BTC"}, api.queries)
	assert.Equal(t, []cryptodash.Suggestion{btc}, f.Suggestions())
	assert.False(t, f.Loading())
}

func TestEmptyQueryClearsWithoutRequest(t *testing.T) {
	api := &fakeSearcher{}
	f, rec := newTestFetcher(api)

	f.items = []cryptodash.Suggestion{btc}
	assert.Nil(t, f.SetQuery(""))
	assert.Empty(t, f.Suggestions())
	assert.Empty(t, rec.Ticks)
	assert.Empty(t, api.queries)
}

func TestWhitespaceQueryIsSent(t *testing.T) {
	api := &fakeSearcher{}
	f, rec := newTestFetcher(api)

	require.NotNil(t, f.SetQuery(" "))
	require.Len(t, rec.Ticks, 1)
	cmd := f.Update(rec.Last().Fire())
	require.NotNil(t, cmd)
	f.Update(cmd())
	assert.Equal(t, []string{" "}, api.queries)
}

func TestClearingRetiresPendingTimer(t *testing.T) {
	api := &fakeSearcher{}
	f, rec := newTestFetcher(api)

	f.SetQuery("E")
	f.Clear()
	assert.Nil(t, f.Update(rec.Last().Fire()))
	assert.Empty(t, api.queries)
}

func TestOnlyLatestDispatchApplies(t *testing.T) {
	api := &fakeSearcher{results: map[string][]cryptodash.Suggestion{
		"E":   {{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"}},
		"ETH": {{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"}, {ID: "ethena", Symbol: "ETHFI", Name: "Ether.fi"}},
	}}
	f, rec := newTestFetcher(api)

	f.SetQuery("E")
	first := f.Update(rec.Last().Fire())
	f.SetQuery("ETH")
	second := f.Update(rec.Last().Fire())

	// second completes before first
	f.Update(second())
	f.Update(first())
	require.Len(t, f.Suggestions(), 2)
	assert.False(t, f.Loading())
}

func TestResultForChangedQueryIgnored(t *testing.T) {
	api := &fakeSearcher{results: map[string][]cryptodash.Suggestion{"BTC": {btc}}}
	f, rec := newTestFetcher(api)

	f.SetQuery("BTC")
	cmd := f.Update(rec.Last().Fire())
	f.SetQuery("BTCX")

	f.Update(cmd())
	assert.Empty(t, f.Suggestions())
	assert.False(t, f.Loading())
}

func TestFailureEmptiesList(t *testing.T) {
	api := &fakeSearcher{err: &cryptodash.APIError{StatusCode: http.StatusBadGateway, Detail: "upstream"}}
	f, rec := newTestFetcher(api)
	f.items = []cryptodash.Suggestion{btc}

	f.SetQuery("BTC")
	cmd := f.Update(rec.Last().Fire())
	assert.Nil(t, f.Update(cmd()))
	assert.Empty(t, f.Suggestions())
	assert.Error(t, f.Err())
}

func TestDatasetMissingRequestsRefresh(t *testing.T) {
	api := &fakeSearcher{err: &cryptodash.APIError{
		StatusCode: http.StatusInternalServerError,
		Detail:     "Le fichier coins.parquet est introuvable.",
	}}
	f, rec := newTestFetcher(api)

	f.SetQuery("a")
	cmd := f.Update(rec.Last().Fire())
	next := f.Update(cmd())
	require.NotNil(t, next)
	assert.Equal(t, refresh.InitiateMsg{Auto: true}, next())
}
