package cryptodash

import "github.com/shopspring/decimal"

// Suggestion is a catalog entry returned by the pair search.
type Suggestion struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Tradable bool   `json:"is_tradable"`
}

// PriceQuote is a spot price for one symbol and the venue that produced it.
type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source"`
}

// Refresh job statuses reported by /api/refresh-status.
const (
	StatusNotStarted = "not-started"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// RefreshStatus is the server's view of the data-refresh job.
type RefreshStatus struct {
	Status       string `json:"status"`
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	Stage        string `json:"stage"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Risk levels attached to lending positions.
const (
	RiskSafe     = "safe"
	RiskRisky    = "risky"
	RiskCritical = "critical"
)

// LendingPosition is one collateral/borrow pair of a lending account.
type LendingPosition struct {
	Collateral           string  `json:"collateral"`
	Borrowed             string  `json:"borrowed"`
	CollateralValue      float64 `json:"collateralValue"`
	BorrowValue          float64 `json:"borrowValue"`
	Ratio                float64 `json:"ratio"`
	LiquidationThreshold float64 `json:"liquidationThreshold,omitempty"`
	HealthFactor         float64 `json:"healthFactor"`
	RiskLevel            string  `json:"riskLevel"`
}

// Key identifies a position within a session.
func (p LendingPosition) Key() string {
	return p.Collateral + "-" + p.Borrowed
}

// DemoWallet makes the server answer with canned positions.
const DemoWallet = "DEMO"

// messageResponse is the body of a successful POST /api/refresh-data.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the FastAPI-style error body.
type errorResponse struct {
	Detail string `json:"detail"`
}
