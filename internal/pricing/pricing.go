// Package pricing resolves the spot price of a catalog entry by trying the
// configured sources in order.
package pricing

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cryptodash/internal/domain"
	"cryptodash/internal/metrics"
)

// Source names reported with a quote.
const (
	SourceBinance   = "Binance"
	SourceAlpaca    = "Alpaca"
	SourceCoinGecko = "CoinGecko"
)

// ErrNoPrice is returned when every source failed.
var ErrNoPrice = errors.New("no price available")

// Quote is a resolved price.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Source string
}

// Request identifies what to price.
type Request struct {
	Symbol   string
	CoinID   string
	Tradable bool // tradable against USDC on Binance
}

// PairPricer prices an exchange pair such as "BTCUSDC".
type PairPricer interface {
	Price(ctx context.Context, pair string) (decimal.Decimal, error)
}

// SymbolPricer prices a base symbol against USD.
type SymbolPricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// IDPricer prices a coin by its CoinGecko id.
type IDPricer interface {
	SimplePrice(ctx context.Context, id string) (decimal.Decimal, error)
}

// Resolver chains the price sources. Any of them may be nil.
type Resolver struct {
	Binance   PairPricer
	Alpaca    SymbolPricer
	CoinGecko IDPricer
	Metrics   *metrics.Recorder
	Log       *zap.Logger
}

// Resolve tries Binance for tradable pairs, then Alpaca, then CoinGecko.
// The first positive price wins.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" && req.CoinID == "" {
		return Quote{}, errors.New("symbol or coin_id is required")
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	try := func(source string, fn func() (decimal.Decimal, error)) (Quote, bool) {
		p, err := fn()
		ok := err == nil && p.IsPositive()
		r.Metrics.RecordPriceLookup(strings.ToLower(source), ok)
		if !ok {
			log.Debug("price source failed",
				zap.String("source", source), zap.String("symbol", symbol), zap.Error(err))
			return Quote{}, false
		}
		return Quote{Symbol: symbol, Price: p, Source: source}, true
	}

	if r.Binance != nil && req.Tradable && symbol != "" {
		pair := domain.Coin{Symbol: symbol}.BinancePair()
		if q, ok := try(SourceBinance, func() (decimal.Decimal, error) { return r.Binance.Price(ctx, pair) }); ok {
			return q, nil
		}
	}
	if r.Alpaca != nil && symbol != "" {
		if q, ok := try(SourceAlpaca, func() (decimal.Decimal, error) { return r.Alpaca.Price(ctx, symbol) }); ok {
			return q, nil
		}
	}
	if r.CoinGecko != nil && req.CoinID != "" {
		if q, ok := try(SourceCoinGecko, func() (decimal.Decimal, error) { return r.CoinGecko.SimplePrice(ctx, req.CoinID) }); ok {
			return q, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	return Quote{}, errors.Wrapf(ErrNoPrice, "%s", symbolOrID(symbol, req.CoinID))
}

func symbolOrID(symbol, id string) string {
	if symbol != "" {
		return symbol
	}
	return id
}
