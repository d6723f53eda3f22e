package risk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/domain"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestAssess(t *testing.T) {
	m := NewManager(nil, 0, 0, nil)

	tests := []struct {
		name  string
		pos   domain.Position
		ratio float64
		hf    float64
		level domain.RiskLevel
	}{
		{"safe", domain.Position{CollateralValue: 1500.50, BorrowValue: 750.25, LiquidationThreshold: 80}, 50, 1.6, domain.RiskSafe},
		{"risky", domain.Position{CollateralValue: 2500, BorrowValue: 1800, LiquidationThreshold: 80}, 72, 1.1111, domain.RiskRisky},
		{"critical", domain.Position{CollateralValue: 1000, BorrowValue: 820, LiquidationThreshold: 85}, 82, 1.0366, domain.RiskCritical},
		{"no debt", domain.Position{CollateralValue: 1000, LiquidationThreshold: 80}, 0, 0, domain.RiskSafe},
		{"no collateral", domain.Position{BorrowValue: 10, LiquidationThreshold: 80}, 100, 0, domain.RiskCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := m.Assess(tt.pos)
			assert.InDelta(t, tt.ratio, a.Ratio, 1e-3)
			assert.InDelta(t, tt.hf, a.HealthFactor, 1e-3)
			assert.Equal(t, tt.level, a.Level)
		})
	}
}

func TestCustomThresholds(t *testing.T) {
	m := NewManager(nil, 1.2, 2.0, nil)
	a := m.Assess(domain.Position{CollateralValue: 1500.50, BorrowValue: 750.25, LiquidationThreshold: 80})
	assert.Equal(t, domain.RiskRisky, a.Level)

	// riskyBelow under criticalBelow falls back to the default.
	m = NewManager(nil, 1.2, 1.0, nil)
	assert.Equal(t, 1.5, m.riskyBelow)
}

func TestDemoWallet(t *testing.T) {
	m := NewManager(nil, 0, 0, nil)

	got, err := m.Positions(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SOL", got[0].Collateral)
	assert.Equal(t, domain.RiskSafe, got[0].Level)
	assert.Equal(t, "JUP", got[1].Collateral)
	assert.Equal(t, domain.RiskCritical, got[1].Level)
}

func TestPositionsWithoutSource(t *testing.T) {
	m := NewManager(nil, 0, 0, nil)

	_, err := m.Positions(context.Background(), testWallet)
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = m.Positions(context.Background(), "not-a-wallet")
	assert.ErrorIs(t, err, ErrInvalidWallet)
}

func TestValidWallet(t *testing.T) {
	assert.True(t, ValidWallet(testWallet))
	assert.False(t, ValidWallet(""))
	assert.False(t, ValidWallet("short"))
	assert.False(t, ValidWallet("0WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"), "0 is not base58")
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/positions/" + testWallet:
			fmt.Fprint(w, `[{"collateral":"SOL","borrowed":"USDC","collateralValue":1000,"borrowValue":900,"liquidationThreshold":80}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewManager(NewHTTPSource(srv.URL+"/positions/", 0), 0, 0, nil)

	got, err := m.Positions(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SOL-USDC", got[0].Collateral+"-"+got[0].Borrowed)
	assert.InDelta(t, 0.8889, got[0].HealthFactor, 1e-3)
	assert.Equal(t, domain.RiskCritical, got[0].Level)

	empty, err := m.Positions(context.Background(), "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHTTPSourceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, 0).Positions(context.Background(), testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
