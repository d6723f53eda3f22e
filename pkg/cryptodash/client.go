// Package cryptodash is the Go SDK for the cryptodash-server HTTP API.
package cryptodash

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 30 * time.Second

// Client provides typed access to the cryptodash-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL
// (for example "http://localhost:8000").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SearchPairs returns catalog entries matching query.
func (c *Client) SearchPairs(ctx context.Context, query string) ([]Suggestion, error) {
	q := url.Values{}
	q.Set("search", query)

	var out []Suggestion
	if err := c.do(ctx, http.MethodGet, "/api/pairs?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPrice resolves the spot price of one catalog entry.
func (c *Client) GetPrice(ctx context.Context, symbol, coinID string, tradable bool) (PriceQuote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("coin_id", coinID)
	q.Set("is_tradable", strconv.FormatBool(tradable))

	var out PriceQuote
	if err := c.do(ctx, http.MethodGet, "/api/price?"+q.Encode(), &out); err != nil {
		return PriceQuote{}, err
	}
	return out, nil
}

// StartRefresh asks the server to rebuild its dataset and returns the
// server's message. A job already running yields an error for which
// IsConflict is true.
func (c *Client) StartRefresh(ctx context.Context) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/api/refresh-data", &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// RefreshStatus returns the current state of the refresh job.
func (c *Client) RefreshStatus(ctx context.Context) (RefreshStatus, error) {
	var out RefreshStatus
	if err := c.do(ctx, http.MethodGet, "/api/refresh-status", &out); err != nil {
		return RefreshStatus{}, err
	}
	return out, nil
}

// LendingPositions returns the lending positions of wallet. DemoWallet
// returns canned data. An empty slice is a valid answer.
func (c *Client) LendingPositions(ctx context.Context, wallet string) ([]LendingPosition, error) {
	var out []LendingPosition
	if err := c.do(ctx, http.MethodGet, "/api/jupiter-lend-positions/"+url.PathEscape(wallet), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []LendingPosition{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			apiErr.Detail = er.Detail
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}
