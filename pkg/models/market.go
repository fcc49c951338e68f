package models

import (
	"fmt"
	"strings"
)

// FeeTable maps a security code to its trust fee in percent (0.06 means 0.06%).
type FeeTable map[string]float64

// NameTable maps a security code to its Japanese display name.
type NameTable map[string]string

// MarketTable maps a security code to its market data bundle.
type MarketTable map[string]MarketEntry

// Period is a return horizon published in the market-data file.
type Period string

const (
	Period1M  Period = "1m"
	Period3M  Period = "3m"
	Period6M  Period = "6m"
	Period1Y  Period = "1y"
	Period3Y  Period = "3y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodYTD Period = "ytd"
)

var periods = []Period{Period1M, Period3M, Period6M, Period1Y, Period3Y, Period5Y, Period10Y, PeriodYTD}

// Periods returns every supported period in display order.
func Periods() []Period {
	return append([]Period(nil), periods...)
}

// ParsePeriod validates s against the supported periods.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("period must be one of %v, got %q", periods, s)
}

// MarketEntry is one ETF row from the market-data file.
// A nil pointer means the provider published no value.
type MarketEntry struct {
	NameJA        string              `json:"name_ja"        yaml:"name_ja"`
	NameEN        string              `json:"name_en"        yaml:"name_en"`
	Fee           *float64            `json:"fee"            yaml:"fee"`
	DividendYield *float64            `json:"dividend_yield" yaml:"dividend_yield"`
	Returns       map[Period]*float64 `json:"returns"        yaml:"returns"`
}

// Name returns the display name for lang.
func (e MarketEntry) Name(lang Lang) string {
	if lang == LangEN {
		return e.NameEN
	}
	return e.NameJA
}

// Return returns the value for period p, if any.
func (e MarketEntry) Return(p Period) (float64, bool) {
	v := e.Returns[p]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// RankEntry is one row of a period-return ranking.
type RankEntry struct {
	Code          string   `json:"code"           yaml:"code"`
	Name          string   `json:"name"           yaml:"name"`
	Return        float64  `json:"return"         yaml:"return"`
	Fee           *float64 `json:"fee"            yaml:"fee"`
	DividendYield *float64 `json:"dividend_yield" yaml:"dividend_yield"`
}

// WarningCode categorises non-fatal diagnostics.
type WarningCode string

const (
	// WarnMissingNames means some codes had no Japanese name after a forced master refresh.
	WarnMissingNames WarningCode = "missing_names"
)

// Warning is a non-fatal issue reported alongside a successful result.
type Warning struct {
	Code    WarningCode `json:"code"            yaml:"code"`
	Message string      `json:"message"         yaml:"message"`
	Codes   []string    `json:"codes,omitempty" yaml:"codes,omitempty"`
}
