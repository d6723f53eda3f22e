package util

import (
	"time"

	"golang.org/x/time/rate"
)

// NewRateLimiter creates a limiter that allows perMinute operations per
// minute, one at a time. perMinute <= 0 means unlimited.
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
