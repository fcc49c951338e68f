package datasource

import (
	"encoding/csv"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

// Minimum column count of a holdings row: code, name, ISIN, exchange,
// currency, shares, price.
const minHoldingColumns = 7

// ParsePCF parses PCF text into the fund header and its holdings.
//
// The file has two sections separated by a blank line: a header plus one
// fund row, then a header plus one row per holding. Holding rows that are
// short or carry non-numeric shares/price are skipped. Weights are each
// holding's share of total market value, or 0 when the total is 0.
func ParsePCF(text string) (models.ETFInfo, []models.Holding, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))

	sections := strings.Split(text, "\n\n")
	if len(sections) < 2 {
		return models.ETFInfo{}, nil, parseError("expected two sections separated by a blank line")
	}

	info, err := parseInfoSection(sections[0])
	if err != nil {
		return models.ETFInfo{}, nil, err
	}
	holdings, err := parseHoldingsSection(sections[1])
	if err != nil {
		return models.ETFInfo{}, nil, err
	}
	return info, holdings, nil
}

func newCSVReader(section string) *csv.Reader {
	r := csv.NewReader(strings.NewReader(section))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func parseInfoSection(section string) (models.ETFInfo, error) {
	r := newCSVReader(section)
	if _, err := r.Read(); err != nil {
		return models.ETFInfo{}, parseError("ETF info section is incomplete")
	}
	row, err := r.Read()
	if err != nil {
		return models.ETFInfo{}, parseError("ETF info section is incomplete")
	}
	if len(row) < 5 {
		return models.ETFInfo{}, parseError("failed to parse ETF info: expected 5 fields, got %d", len(row))
	}

	cash, err := parseNumber(row[2])
	if err != nil {
		return models.ETFInfo{}, parseError("failed to parse ETF info: cash component %q", row[2])
	}
	shares, err := parseNumber(row[3])
	if err != nil || shares >= math.MaxInt64 || shares < math.MinInt64 {
		return models.ETFInfo{}, parseError("failed to parse ETF info: shares outstanding %q", row[3])
	}
	date, err := utils.ParseDateJST(strings.TrimSpace(row[4]))
	if err != nil {
		return models.ETFInfo{}, parseError("failed to parse ETF info: date %q", row[4])
	}

	return models.ETFInfo{
		Code:              strings.TrimSpace(row[0]),
		Name:              strings.TrimSpace(row[1]),
		CashComponent:     cash,
		SharesOutstanding: int64(shares),
		Date:              date,
	}, nil
}

func parseHoldingsSection(section string) ([]models.Holding, error) {
	r := newCSVReader(section)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, parseError("failed to read holdings: %v", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}

	var (
		holdings []models.Holding
		total    float64
	)
	for _, row := range rows {
		if len(row) < minHoldingColumns {
			continue
		}
		shares, err := parseNumber(row[5])
		if err != nil {
			continue
		}
		price, err := parseNumber(row[6])
		if err != nil {
			continue
		}

		h := models.Holding{
			Code:     strings.TrimSpace(row[0]),
			Name:     strings.TrimSpace(row[1]),
			ISIN:     strings.TrimSpace(row[2]),
			Exchange: strings.TrimSpace(row[3]),
			Currency: strings.TrimSpace(row[4]),
			Shares:   shares,
			Price:    price,
		}
		total += h.MarketValue()
		holdings = append(holdings, h)
	}

	if len(holdings) == 0 {
		return nil, parseError("no valid holdings found")
	}

	for i := range holdings {
		if total != 0 {
			holdings[i].Weight = holdings[i].MarketValue() / total
		}
	}
	return holdings, nil
}

var errNonFinite = errors.New("non-finite number")

// parseNumber parses a decimal field, rejecting NaN and infinities.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNonFinite
	}
	return v, nil
}
