// Package httpapi serves the cryptodash HTTP API: pair search, spot price,
// the data-refresh job and lending positions.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cryptodash/internal/domain"
	"cryptodash/internal/metrics"
	"cryptodash/internal/pricing"
	"cryptodash/internal/risk"
)

// Catalog searches the coin catalog.
type Catalog interface {
	SearchCoins(ctx context.Context, query string, limit int) ([]domain.Coin, error)
}

// Refresher starts the data-refresh job and reports its progress.
type Refresher interface {
	Start() (string, error)
	Status() domain.JobState
}

// Pricer resolves spot prices.
type Pricer interface {
	Resolve(ctx context.Context, req pricing.Request) (pricing.Quote, error)
}

// Lending assesses the lending positions of a wallet.
type Lending interface {
	Positions(ctx context.Context, wallet string) ([]risk.Assessment, error)
}

// Deps are the collaborators of a Server. Metrics and Gatherer are optional.
type Deps struct {
	Catalog   Catalog
	Refresher Refresher
	Pricer    Pricer
	Lending   Lending
	Metrics   *metrics.Recorder
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
	Origins   []string // CORS allow-list; empty allows any origin
}

// Server serves the HTTP API.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, log: log.Named("httpapi")}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pairs", s.handlePairs)
	mux.HandleFunc("GET /api/price", s.handlePrice)
	mux.HandleFunc("POST /api/refresh-data", s.handleStartRefresh)
	mux.HandleFunc("GET /api/refresh-status", s.handleRefreshStatus)
	mux.HandleFunc("GET /api/jupiter-lend-positions/{wallet}", s.handleLendingPositions)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns an http.Handler with CORS and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.corsMiddleware(s.metricsMiddleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if len(s.deps.Origins) == 0 {
		return "*"
	}
	for _, o := range s.deps.Origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Pattern is set by the mux; unmatched paths share one label.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RecordHTTP(route, r.Method, strconv.Itoa(rw.status), time.Since(start).Seconds())
		if rw.status >= http.StatusInternalServerError {
			s.log.Warn("request failed",
				zap.String("route", route),
				zap.Int("status", rw.status),
				zap.Duration("duration", time.Since(start)))
		}
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding JSON response", zap.Error(err))
	}
}

// writeError writes a {"detail": msg} body.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Detail: msg})
}
