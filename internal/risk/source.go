package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pkg/errors"

	"cryptodash/internal/domain"
	"cryptodash/internal/util"
)

// upstreamPosition is the JSON shape served by a lending upstream.
type upstreamPosition struct {
	Collateral           string  `json:"collateral"`
	Borrowed             string  `json:"borrowed"`
	CollateralValue      float64 `json:"collateralValue"`
	BorrowValue          float64 `json:"borrowValue"`
	LiquidationThreshold float64 `json:"liquidationThreshold"`
}

// HTTPSource reads positions from GET <baseURL>/<wallet>.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	policy  retrypolicy.RetryPolicy[*util.HTTPResult]
}

// NewHTTPSource creates a source for baseURL with a small retry budget.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		policy:  util.NewHTTPRetryPolicy(2, 500*time.Millisecond, 2*time.Second),
	}
}

// Positions fetches the positions of wallet. A 404 means no positions.
func (s *HTTPSource) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	target := s.baseURL + "/" + url.PathEscape(wallet)
	res, err := util.DoHTTP(ctx, s.client, s.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "lending upstream")
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return []domain.Position{}, nil
	case res.StatusCode != http.StatusOK:
		return nil, errors.Errorf("lending upstream: status %d", res.StatusCode)
	}

	var rows []upstreamPosition
	if err := json.Unmarshal(res.Body, &rows); err != nil {
		return nil, errors.Wrap(err, "decoding lending positions")
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Position{
			Collateral:           r.Collateral,
			Borrowed:             r.Borrowed,
			CollateralValue:      r.CollateralValue,
			BorrowValue:          r.BorrowValue,
			LiquidationThreshold: r.LiquidationThreshold,
		})
	}
	return out, nil
}
