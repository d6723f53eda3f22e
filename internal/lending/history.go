package lending

import (
	"time"

	"cryptodash/pkg/cryptodash"
)

// DefaultHistorySize is the number of samples kept per session.
const DefaultHistorySize = 50

// Totals aggregates a set of positions.
type Totals struct {
	Supply          float64
	Borrow          float64
	AvgHealthFactor float64
}

// ComputeTotals sums collateral and borrow values and averages the health
// factor. An empty set yields zero totals.
func ComputeTotals(positions []cryptodash.LendingPosition) Totals {
	var t Totals
	if len(positions) == 0 {
		return t
	}
	var hf float64
	for _, p := range positions {
		t.Supply += p.CollateralValue
		t.Borrow += p.BorrowValue
		hf += p.HealthFactor
	}
	t.AvgHealthFactor = hf / float64(len(positions))
	return t
}

// Sample is one point of the session history.
type Sample struct {
	Time time.Time
	Totals
}

// History is a bounded, append-only list of samples. The oldest sample is
// dropped once the bound is reached.
type History struct {
	max     int
	samples []Sample
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{max: limit}
}

func (h *History) Add(s Sample) {
	h.samples = append(h.samples, s)
	if len(h.samples) > h.max {
		h.samples = append(h.samples[:0:0], h.samples[len(h.samples)-h.max:]...)
	}
}

func (h *History) Len() int { return len(h.samples) }

// Samples returns the samples oldest first. The slice must not be modified.
func (h *History) Samples() []Sample { return h.samples }

// HealthFactors returns the average health factor of every sample, for
// plotting.
func (h *History) HealthFactors() []float64 {
	out := make([]float64, len(h.samples))
	for i, s := range h.samples {
		out[i] = s.AvgHealthFactor
	}
	return out
}
