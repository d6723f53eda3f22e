package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/config"
	"cryptodash/internal/util"
)

const exchangeInfoJSON = `{
  "timezone": "UTC",
  "serverTime": 1700000000000,
  "symbols": [
    {"symbol": "BTCUSDC", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDC"},
    {"symbol": "ETHUSDC", "status": "TRADING", "baseAsset": "ETH", "quoteAsset": "USDC"},
    {"symbol": "LUNAUSDC", "status": "BREAK", "baseAsset": "LUNA", "quoteAsset": "USDC"},
    {"symbol": "BTCUSDT", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT"}
  ]
}`

func newBinanceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			fmt.Fprint(w, exchangeInfoJSON)
		case "/api/v3/ticker/price":
			if r.URL.Query().Get("symbol") == "BTCUSDC" {
				fmt.Fprint(w, `{"symbol":"BTCUSDC","price":"64250.12000000"}`)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceTradablePairs(t *testing.T) {
	srv := newBinanceServer(t)
	b := NewBinance(config.Binance{BaseURL: srv.URL, Quote: "usdc"})

	pairs, err := b.TradablePairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"BTCUSDC": true, "ETHUSDC": true}, pairs)
	assert.Equal(t, "USDC", b.Quote())
}

func TestBinancePrice(t *testing.T) {
	srv := newBinanceServer(t)
	b := NewBinance(config.Binance{BaseURL: srv.URL, Quote: "USDC"})

	p, err := b.Price(context.Background(), "BTCUSDC")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("64250.12").Equal(p))

	_, err = b.Price(context.Background(), "NOPEUSDC")
	assert.Error(t, err)
}

func TestMockPairs(t *testing.T) {
	pairs := MockPairs("usdc")
	assert.Len(t, pairs, 17)
	assert.True(t, pairs["BTCUSDC"])
	assert.True(t, pairs["UNIUSDC"])
	assert.False(t, pairs["BTCUSDT"])
}

func newTestCoinGecko(t *testing.T, h http.HandlerFunc) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cg := NewCoinGecko(config.CoinGecko{BaseURL: srv.URL, APIKey: "demo-key", RateLimitPerMin: 0, MaxRetries: 2})
	cg.policy = util.NewHTTPRetryPolicy(2, 0, 0)
	return cg
}

func TestCoinGeckoMarkets(t *testing.T) {
	cg := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "market_cap_desc", r.URL.Query().Get("order"))
		assert.Equal(t, "250", r.URL.Query().Get("per_page"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "demo-key", r.Header.Get(demoKeyHeader))
		fmt.Fprint(w, `[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","market_cap_rank":1,"current_price":64250.5},
			{"id":"obscure","symbol":"obs","name":"Obscure","market_cap_rank":null,"current_price":null}
		]`)
	})

	got, err := cg.Markets(context.Background(), 2, 250)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bitcoin", got[0].ID)
	assert.Equal(t, 1, got[0].MarketCapRank)
	require.NotNil(t, got[0].CurrentPrice)
	assert.Equal(t, "64250.5", got[0].CurrentPrice.String())
	assert.Nil(t, got[1].CurrentPrice)
	assert.Zero(t, got[1].MarketCapRank)
}

func TestCoinGeckoSimplePrice(t *testing.T) {
	cg := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		if r.URL.Query().Get("ids") == "pepe" {
			fmt.Fprint(w, `{"pepe":{"usd":0.0003456}}`)
			return
		}
		fmt.Fprint(w, `{}`)
	})

	p, err := cg.SimplePrice(context.Background(), "pepe")
	require.NoError(t, err)
	assert.Equal(t, "0.0003456", p.String())

	_, err = cg.SimplePrice(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestCoinGeckoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	cg := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"bitcoin":{"usd":1}}`)
	})

	p, err := cg.SimplePrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoinGeckoGivesUp(t *testing.T) {
	var calls atomic.Int32
	cg := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := cg.Markets(context.Background(), 1, 250)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}

type fakeTrades struct {
	trade *marketdata.CryptoTrade
	err   error
	got   string
}

func (f *fakeTrades) GetLatestCryptoTrade(symbol string, _ marketdata.GetLatestCryptoTradeRequest) (*marketdata.CryptoTrade, error) {
	f.got = symbol
	return f.trade, f.err
}

func TestAlpacaPrice(t *testing.T) {
	f := &fakeTrades{trade: &marketdata.CryptoTrade{Price: 150.25}}
	a := NewAlpacaWithClient(f)

	p, err := a.Price(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, "SOL/USD", f.got)
	assert.Equal(t, "150.25", p.String())

	f.trade = nil
	_, err = a.Price(context.Background(), "sol")
	assert.ErrorIs(t, err, ErrPriceNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Price(ctx, "sol")
	assert.ErrorIs(t, err, context.Canceled)
}
