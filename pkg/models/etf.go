package models

import (
	"fmt"
	"time"
)

// ETFInfo is the fund-level header of a portfolio composition file (PCF).
type ETFInfo struct {
	Code              string    `json:"code"               yaml:"code"`
	Name              string    `json:"name"               yaml:"name"`
	CashComponent     float64   `json:"cash_component"     yaml:"cash_component"` // yen
	SharesOutstanding int64     `json:"shares_outstanding" yaml:"shares_outstanding"`
	Date              time.Time `json:"date"               yaml:"date"`
}

// WithName returns a copy of the info with Name replaced.
func (i ETFInfo) WithName(name string) ETFInfo {
	i.Name = name
	return i
}

// Holding is a single constituent of an ETF basket.
// Weight is derived from market values at parse time and lies in [0,1].
type Holding struct {
	Code     string  `json:"code"     yaml:"code"`
	Name     string  `json:"name"     yaml:"name"`
	ISIN     string  `json:"isin"     yaml:"isin"`
	Exchange string  `json:"exchange" yaml:"exchange"`
	Currency string  `json:"currency" yaml:"currency"`
	Shares   float64 `json:"shares"   yaml:"shares"`
	Price    float64 `json:"price"    yaml:"price"`
	Weight   float64 `json:"weight"   yaml:"weight"`
}

// MarketValue returns Shares × Price in the holding's currency.
func (h Holding) MarketValue() float64 {
	return h.Shares * h.Price
}

// WithName returns a copy of the holding with Name replaced.
func (h Holding) WithName(name string) Holding {
	h.Name = name
	return h
}

// TopHolding is a holding summarised for display, weight in percent.
type TopHolding struct {
	Code      string  `json:"code"       yaml:"code"`
	Name      string  `json:"name"       yaml:"name"`
	WeightPct float64 `json:"weight_pct" yaml:"weight_pct"`
}

// Lang selects which display names are used.
type Lang string

const (
	LangJA Lang = "ja"
	LangEN Lang = "en"
)

// ParseLang validates a language string. An empty string means Japanese.
func ParseLang(s string) (Lang, error) {
	switch Lang(s) {
	case "", LangJA:
		return LangJA, nil
	case LangEN:
		return LangEN, nil
	}
	return "", fmt.Errorf("unknown language %q (want ja or en)", s)
}
