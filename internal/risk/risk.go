// Package risk computes health factors and loan-to-value ratios of lending
// positions and classifies them by liquidation risk.
package risk

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"

	"cryptodash/internal/domain"
	"cryptodash/internal/metrics"
)

// DemoWallet returns canned positions instead of querying a source.
const DemoWallet = "DEMO"

// ErrNoSource is returned for a real wallet when no upstream is configured.
var ErrNoSource = errors.New("lending source not configured")

// ErrInvalidWallet is returned for a malformed wallet address.
var ErrInvalidWallet = errors.New("invalid wallet address")

// Default health-factor thresholds.
const (
	DefaultCriticalBelow = 1.1
	DefaultRiskyBelow    = 1.5
)

// Assessment is a position with its computed risk figures.
type Assessment struct {
	domain.Position
	Ratio        float64 // borrow / collateral, percent
	HealthFactor float64 // 0 when nothing is borrowed
	Level        domain.RiskLevel
}

// Source fetches the raw positions of a wallet.
type Source interface {
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// Manager classifies positions against health-factor thresholds.
type Manager struct {
	criticalBelow float64
	riskyBelow    float64
	source        Source
	metrics       *metrics.Recorder
}

// NewManager creates a Manager. source may be nil, in which case only the
// demo wallet is served.
//
//   - criticalBelow: health factor under which a position is critical
//     (e.g. 1.1).
//   - riskyBelow: health factor under which a position is risky (e.g. 1.5).
func NewManager(source Source, criticalBelow, riskyBelow float64, rec *metrics.Recorder) *Manager {
	if criticalBelow <= 0 {
		criticalBelow = DefaultCriticalBelow
	}
	if riskyBelow < criticalBelow {
		riskyBelow = math.Max(DefaultRiskyBelow, criticalBelow)
	}
	return &Manager{
		criticalBelow: criticalBelow,
		riskyBelow:    riskyBelow,
		source:        source,
		metrics:       rec,
	}
}

// Positions returns the assessed positions of wallet. An empty slice is a
// valid answer.
func (m *Manager) Positions(ctx context.Context, wallet string) ([]Assessment, error) {
	wallet = strings.TrimSpace(wallet)

	var raw []domain.Position
	switch {
	case strings.EqualFold(wallet, DemoWallet):
		raw = DemoPositions()
	case !ValidWallet(wallet):
		return nil, ErrInvalidWallet
	case m.source == nil:
		return nil, ErrNoSource
	default:
		var err error
		raw, err = m.source.Positions(ctx, wallet)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Assessment, 0, len(raw))
	for _, p := range raw {
		a := m.Assess(p)
		m.metrics.RecordPosition(string(a.Level))
		out = append(out, a)
	}
	return out, nil
}

// Assess computes the ratio, health factor and risk level of p.
func (m *Manager) Assess(p domain.Position) Assessment {
	a := Assessment{Position: p}
	if p.CollateralValue > 0 {
		a.Ratio = p.BorrowValue / p.CollateralValue * 100
	} else if p.BorrowValue > 0 {
		a.Ratio = 100
	}
	if p.BorrowValue > 0 {
		a.HealthFactor = p.CollateralValue * p.LiquidationThreshold / 100 / p.BorrowValue
	}
	a.Level = m.classify(a)
	return a
}

func (m *Manager) classify(a Assessment) domain.RiskLevel {
	if a.BorrowValue <= 0 {
		return domain.RiskSafe
	}
	switch {
	case a.HealthFactor < m.criticalBelow:
		return domain.RiskCritical
	case a.HealthFactor < m.riskyBelow:
		return domain.RiskRisky
	default:
		return domain.RiskSafe
	}
}

// DemoPositions returns the canned positions of the demo wallet: one safe
// and one critical.
func DemoPositions() []domain.Position {
	return []domain.Position{
		{Collateral: "SOL", Borrowed: "USDC", CollateralValue: 1500.50, BorrowValue: 750.25, LiquidationThreshold: 80},
		{Collateral: "JUP", Borrowed: "USDC", CollateralValue: 1000.00, BorrowValue: 820.00, LiquidationThreshold: 85},
	}
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidWallet reports whether s looks like a Solana address: 32 to 44
// base58 characters.
func ValidWallet(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
