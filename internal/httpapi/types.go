package httpapi

import (
	"cryptodash/internal/domain"
	"cryptodash/internal/pricing"
	"cryptodash/internal/risk"
	"cryptodash/pkg/cryptodash"
)

// Error details returned to clients.
const (
	// The client starts a refresh when a search failure carries
	// cryptodash.DatasetMissingMarker, so this text must keep it.
	detailDatasetMissing = "Le fichier de données des cryptomonnaies est introuvable. Lancez une mise à jour des données."
	detailRefreshRunning = "A data refresh is already in progress."
	detailRefreshStarted = "Data refresh started."
	detailSearchFailed   = "Search failed."
	detailPriceRequired  = "symbol or coin_id is required."
	detailBadTradable    = "is_tradable must be a boolean."
	detailPriceFailed    = "Price sources are unavailable."
	detailBadWallet      = "Invalid wallet address."
	detailNoLending      = "Lending data source is not configured."
	detailLendingFailed  = "Failed to fetch lending positions."
)

// errorResponse is the error body, {"detail": "..."}.
type errorResponse struct {
	Detail string `json:"detail"`
}

// messageResponse is the body of an accepted refresh request.
type messageResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

func toSuggestion(c domain.Coin) cryptodash.Suggestion {
	return cryptodash.Suggestion{
		ID:       c.ID,
		Symbol:   c.Symbol,
		Name:     c.Name,
		Tradable: c.TradableOnBinanceUSDC,
	}
}

func toPriceQuote(q pricing.Quote) cryptodash.PriceQuote {
	return cryptodash.PriceQuote{Symbol: q.Symbol, Price: q.Price, Source: q.Source}
}

func toRefreshStatus(s domain.JobState) cryptodash.RefreshStatus {
	return cryptodash.RefreshStatus{
		Status:       string(s.Status),
		Current:      s.Current,
		Total:        s.Total,
		Stage:        s.Stage,
		ErrorMessage: s.ErrorMessage,
	}
}

func toLendingPosition(a risk.Assessment) cryptodash.LendingPosition {
	return cryptodash.LendingPosition{
		Collateral:           a.Collateral,
		Borrowed:             a.Borrowed,
		CollateralValue:      a.CollateralValue,
		BorrowValue:          a.BorrowValue,
		Ratio:                a.Ratio,
		LiquidationThreshold: a.LiquidationThreshold,
		HealthFactor:         a.HealthFactor,
		RiskLevel:            string(a.Level),
	}
}
