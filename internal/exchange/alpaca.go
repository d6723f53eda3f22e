package exchange

import (
	"context"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"cryptodash/internal/config"
)

// CryptoTrades is the part of the Alpaca market-data client used here.
type CryptoTrades interface {
	GetLatestCryptoTrade(symbol string, req marketdata.GetLatestCryptoTradeRequest) (*marketdata.CryptoTrade, error)
}

// Alpaca reads crypto latest trades from Alpaca market data.
type Alpaca struct {
	client CryptoTrades
}

// NewAlpaca creates an Alpaca reader. Crypto data does not require
// credentials but they raise the rate limit.
func NewAlpaca(cfg config.Alpaca) *Alpaca {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return &Alpaca{client: marketdata.NewClient(opts)}
}

// NewAlpacaWithClient wraps an existing client.
func NewAlpacaWithClient(client CryptoTrades) *Alpaca {
	return &Alpaca{client: client}
}

// Price returns the latest trade price of symbol against USD.
func (a *Alpaca) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	pair := strings.ToUpper(symbol) + "/USD"
	trade, err := a.client.GetLatestCryptoTrade(pair, marketdata.GetLatestCryptoTradeRequest{})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "alpaca latest trade %s", pair)
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, errors.Wrapf(ErrPriceNotFound, "alpaca %s", pair)
	}
	return decimal.NewFromFloat(trade.Price), nil
}
