// Package domain holds the server-side types shared by the catalog store,
// the refresh job, pricing and the lending risk engine.
package domain

import (
	"strings"
	"time"
)

// QuoteAsset is the quote currency a coin must trade against on Binance to
// count as tradable.
const QuoteAsset = "USDC"

// Coin is one catalog entry built by the refresh job.
type Coin struct {
	ID                    string // CoinGecko id, e.g. "bitcoin"
	Symbol                string // upper-case ticker, e.g. "BTC"
	Name                  string
	Rank                  int // market-cap rank, 1 is largest
	TradableOnBinanceUSDC bool
}

// BinancePair returns the Binance spot symbol of the coin against USDC.
func (c Coin) BinancePair() string {
	return strings.ToUpper(c.Symbol) + QuoteAsset
}

// JobStatus is the lifecycle status of the data-refresh job.
type JobStatus string

const (
	JobNotStarted JobStatus = "not-started"
	JobInProgress JobStatus = "in_progress"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// JobState is a snapshot of the refresh job's progress.
type JobState struct {
	Status       JobStatus
	Stage        string
	Current      int
	Total        int
	ErrorMessage string
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Running reports whether the job is in progress.
func (s JobState) Running() bool {
	return s.Status == JobInProgress
}

// RiskLevel classifies a lending position by health factor.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskRisky    RiskLevel = "risky"
	RiskCritical RiskLevel = "critical"
)

// Position is a raw lending position as reported by an upstream source,
// before health and risk are computed.
type Position struct {
	Collateral           string
	Borrowed             string
	CollateralValue      float64 // USD
	BorrowValue          float64 // USD
	LiquidationThreshold float64 // percent, e.g. 80
}
