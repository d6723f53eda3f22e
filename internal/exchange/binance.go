// Package exchange wraps the upstream market-data providers: Binance for
// tradable pairs and spot prices, CoinGecko for the coin universe and
// fallback prices, and Alpaca crypto data.
package exchange

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"cryptodash/internal/config"
)

// statusTrading is the exchange-info status of a pair open for trading.
const statusTrading = "TRADING"

// mockBases is the pair set used when Binance cannot be reached, for
// example from a geo-blocked host.
var mockBases = []string{
	"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "AVAX", "LINK", "DOT",
	"DOGE", "MATIC", "LTC", "WBTC", "BCH", "TRX", "SHIB", "UNI",
}

// Binance reads exchange info and ticker prices from Binance spot.
type Binance struct {
	client *binance.Client
	quote  string
}

// NewBinance creates a Binance reader. Credentials are optional; the
// endpoints used are public.
func NewBinance(cfg config.Binance) *Binance {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	quote := strings.ToUpper(cfg.Quote)
	if quote == "" {
		quote = "USDC"
	}
	return &Binance{client: client, quote: quote}
}

// Quote returns the quote asset pairs are filtered on.
func (b *Binance) Quote() string {
	return b.quote
}

// TradablePairs returns the set of spot symbols quoted in the configured
// asset that are currently trading, e.g. {"BTCUSDC": true}.
func (b *Binance) TradablePairs(ctx context.Context) (map[string]bool, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "binance exchange info")
	}

	pairs := make(map[string]bool)
	for _, s := range info.Symbols {
		if s.QuoteAsset == b.quote && s.Status == statusTrading {
			pairs[s.Symbol] = true
		}
	}
	return pairs, nil
}

// Price returns the last traded price of pair, e.g. "BTCUSDC".
func (b *Binance) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "binance price %s", pair)
	}
	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		d, err := decimal.NewFromString(p.Price)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parsing binance price %q", p.Price)
		}
		return d, nil
	}
	return decimal.Zero, errors.Wrapf(ErrPriceNotFound, "binance %s", pair)
}

// MockPairs returns the fallback pair set quoted in quote.
func MockPairs(quote string) map[string]bool {
	pairs := make(map[string]bool, len(mockBases))
	for _, base := range mockBases {
		pairs[base+strings.ToUpper(quote)] = true
	}
	return pairs
}
