// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the server's collectors. A nil *Recorder records nothing.
type Recorder struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	catalogCoins    prometheus.Gauge
	priceLookups    *prometheus.CounterVec
	positions       *prometheus.CounterVec
}

// New creates a Recorder whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptodash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptodash_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		refreshRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptodash_refresh_runs_total",
				Help: "Finished data refresh runs by final status",
			},
			[]string{"status"},
		),
		refreshDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cryptodash_refresh_duration_seconds",
				Help:    "Duration of data refresh runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		catalogCoins: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptodash_catalog_coins",
				Help: "Number of coins in the searchable catalog",
			},
		),
		priceLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptodash_price_lookups_total",
				Help: "Price lookups by source and result",
			},
			[]string{"source", "result"},
		),
		positions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptodash_lending_positions_total",
				Help: "Lending positions served by risk level",
			},
			[]string{"risk"},
		),
	}
}

// RecordHTTP records one served request.
func (r *Recorder) RecordHTTP(route, method, status string, seconds float64) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordRefresh records a finished refresh run.
func (r *Recorder) RecordRefresh(status string, seconds float64) {
	if r == nil {
		return
	}
	r.refreshRuns.WithLabelValues(status).Inc()
	r.refreshDuration.Observe(seconds)
}

// SetCatalogSize records the number of catalog entries.
func (r *Recorder) SetCatalogSize(n int) {
	if r == nil {
		return
	}
	r.catalogCoins.Set(float64(n))
}

// RecordPriceLookup records one attempt against a price source.
func (r *Recorder) RecordPriceLookup(source string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.priceLookups.WithLabelValues(source, result).Inc()
}

// RecordPosition records one classified lending position.
func (r *Recorder) RecordPosition(risk string) {
	if r == nil {
		return
	}
	r.positions.WithLabelValues(risk).Inc()
}
