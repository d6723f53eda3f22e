package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"cryptodash/internal/pricing"
	"cryptodash/internal/risk"
	"cryptodash/internal/store"
	"cryptodash/internal/updater"
	"cryptodash/pkg/cryptodash"
)

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")

	coins, err := s.deps.Catalog.SearchCoins(r.Context(), query, store.DefaultSearchLimit)
	if errors.Is(err, store.ErrCatalogMissing) {
		s.writeError(w, http.StatusInternalServerError, detailDatasetMissing)
		return
	}
	if err != nil {
		s.log.Error("search failed", zap.String("query", query), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, detailSearchFailed)
		return
	}

	out := make([]cryptodash.Suggestion, 0, len(coins))
	for _, c := range coins {
		out = append(out, toSuggestion(c))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := pricing.Request{
		Symbol: strings.TrimSpace(q.Get("symbol")),
		CoinID: strings.TrimSpace(q.Get("coin_id")),
	}
	if req.Symbol == "" && req.CoinID == "" {
		s.writeError(w, http.StatusBadRequest, detailPriceRequired)
		return
	}
	if v := q.Get("is_tradable"); v != "" {
		tradable, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, detailBadTradable)
			return
		}
		req.Tradable = tradable
	}

	quote, err := s.deps.Pricer.Resolve(r.Context(), req)
	if errors.Is(err, pricing.ErrNoPrice) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Price not found for %s.", displayName(req)))
		return
	}
	if err != nil {
		s.log.Warn("price lookup failed", zap.String("symbol", req.Symbol), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, detailPriceFailed)
		return
	}
	s.writeJSON(w, http.StatusOK, toPriceQuote(quote))
}

func (s *Server) handleStartRefresh(w http.ResponseWriter, _ *http.Request) {
	runID, err := s.deps.Refresher.Start()
	if errors.Is(err, updater.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, detailRefreshRunning)
		return
	}
	if err != nil {
		s.log.Error("starting refresh failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, messageResponse{Message: detailRefreshStarted, RunID: runID})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, toRefreshStatus(s.deps.Refresher.Status()))
}

func (s *Server) handleLendingPositions(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")

	assessed, err := s.deps.Lending.Positions(r.Context(), wallet)
	switch {
	case errors.Is(err, risk.ErrInvalidWallet):
		s.writeError(w, http.StatusBadRequest, detailBadWallet)
		return
	case errors.Is(err, risk.ErrNoSource):
		s.writeError(w, http.StatusServiceUnavailable, detailNoLending)
		return
	case err != nil:
		s.log.Warn("lending lookup failed", zap.String("wallet", wallet), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, detailLendingFailed)
		return
	}

	out := make([]cryptodash.LendingPosition, 0, len(assessed))
	for _, a := range assessed {
		out = append(out, toLendingPosition(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func displayName(req pricing.Request) string {
	if req.Symbol != "" {
		return strings.ToUpper(req.Symbol)
	}
	return req.CoinID
}
