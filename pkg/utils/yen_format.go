// Package utils provides common utility functions for jpxetf.
package utils

import (
	"fmt"
	"strings"
)

const (
	oku = 1_0000_0000      // 億
	cho = 1_0000_0000_0000 // 兆
)

// FormatYen formats a yen amount with Japanese unit suffixes.
// e.g., 515994003139 → "5160億", 1.2e13 → "12兆", 123456789 → "1.23億"
func FormatYen(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}

	o := float64(value) / oku
	var s string
	switch {
	case o >= 10000:
		s = trimDecimals(fmt.Sprintf("%.1f", float64(value)/cho)) + "兆"
	case o >= 100:
		s = fmt.Sprintf("%.0f億", o)
	default:
		s = trimDecimals(fmt.Sprintf("%.2f", o)) + "億"
	}

	if negative {
		return "-" + s
	}
	return s
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatOptionalPct formats a possibly absent percentage; absent values render as "-".
func FormatOptionalPct(pct *float64) string {
	if pct == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *pct)
}

// FormatNumber formats an integer with thousands separators.
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// trimDecimals removes trailing zeros and a dangling decimal point.
func trimDecimals(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
