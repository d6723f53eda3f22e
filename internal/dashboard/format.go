package dashboard

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	cent = decimal.New(1, -2)
	ten  = decimal.NewFromInt(10)
	one  = decimal.NewFromInt(1)
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatUSD formats a dollar value with B/M/K suffixes.
func FormatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

// FormatPrice renders a quote price. Prices of at least one cent get two
// decimals; smaller ones get 3-floor(log10(p)) decimals so that four
// significant digits survive. Zero renders "0.00" and a missing price "".
func FormatPrice(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	abs := p.Abs()
	if abs.IsZero() || abs.GreaterThanOrEqual(cent) {
		return p.StringFixed(2)
	}
	return p.StringFixed(3 + leadingZeros(abs))
}

// leadingZeros returns -floor(log10(p)) for 0 < p < 1, computed exactly.
func leadingZeros(p decimal.Decimal) int32 {
	var n int32
	for p.LessThan(one) {
		p = p.Mul(ten)
		n++
	}
	return n
}

// FormatPercent formats a percentage value such as an LTV.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// FormatHealthFactor formats a health factor, or "-" when it is not set.
func FormatHealthFactor(hf float64) string {
	if hf <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", hf)
}

// FormatProgress renders "current/total (pct%)" for the refresh banner.
func FormatProgress(current, total int) string {
	if total <= 0 {
		return FormatInt(current)
	}
	pct := float64(current) / float64(total) * 100
	return fmt.Sprintf("%s/%s (%.0f%%)", FormatInt(current), FormatInt(total), pct)
}

func padOrTrunc(s string, width int) string {
	n := len(s)
	if width <= 0 {
		return s
	}
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}
