package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cryptodash/internal/config"
	"cryptodash/internal/util"
)

// ErrPriceNotFound is returned when a provider has no price for a symbol.
var ErrPriceNotFound = errors.New("price not found")

// demoKeyHeader carries a CoinGecko demo-plan API key.
const demoKeyHeader = "x-cg-demo-api-key"

// Market is one row of /coins/markets.
type Market struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	MarketCapRank int              `json:"market_cap_rank"`
	CurrentPrice  *decimal.Decimal `json:"current_price"`
}

// CoinGecko is a rate-limited, retrying client for the public CoinGecko API.
type CoinGecko struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  retrypolicy.RetryPolicy[*util.HTTPResult]
	limiter *rate.Limiter
}

// NewCoinGecko creates a client from cfg.
func NewCoinGecko(cfg config.CoinGecko) *CoinGecko {
	return &CoinGecko{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  util.NewHTTPRetryPolicy(cfg.MaxRetries, 2*time.Second, 30*time.Second),
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
	}
}

// Markets returns one page of coins ordered by market cap, largest first.
// Pages start at 1.
func (c *CoinGecko) Markets(ctx context.Context, page, perPage int) ([]Market, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")

	var out []Market
	if err := c.get(ctx, "/coins/markets", q, &out); err != nil {
		return nil, errors.Wrapf(err, "coingecko markets page %d", page)
	}
	return out, nil
}

// SimplePrice returns the USD price of the coin with CoinGecko id.
func (c *CoinGecko) SimplePrice(ctx context.Context, id string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")

	var out map[string]map[string]decimal.Decimal
	if err := c.get(ctx, "/simple/price", q, &out); err != nil {
		return decimal.Zero, errors.Wrapf(err, "coingecko price %s", id)
	}
	price, ok := out[id]["usd"]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrPriceNotFound, "coingecko %s", id)
	}
	return price, nil
}

func (c *CoinGecko) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	res, err := util.DoHTTP(ctx, c.http, c.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(demoKeyHeader, c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("status %d: %s", res.StatusCode, truncate(string(res.Body), 200))
	}
	return errors.Wrap(json.Unmarshal(res.Body, out), "decoding response")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
