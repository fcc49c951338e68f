package datasource

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

// Column positions in the header-less market-data CSV.
const (
	colTicker        = 0 // e.g. "1306.T"
	colCode          = 1 // zero-padded, e.g. "01306"
	colNameEN        = 2
	colMarket        = 3
	colFee           = 5
	colDividendYield = 19
	colNameJA        = 22
)

// periodColumns maps each return period to its column.
var periodColumns = map[models.Period]int{
	models.Period1M:  9,
	models.Period3M:  10,
	models.Period6M:  11,
	models.Period1Y:  12,
	models.Period3Y:  13,
	models.Period5Y:  14,
	models.Period10Y: 15,
	models.PeriodYTD: 17,
}

// DomesticETFMarket is the market label of TSE-listed ETFs; other rows are dropped.
const DomesticETFMarket = "東証ETF"

// MarketClient downloads the Rakuten ETF CSV.
type MarketClient struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

// FetchMarketCSV downloads the CSV with any UTF-8 byte-order mark removed.
func (c *MarketClient) FetchMarketCSV(ctx context.Context) ([]byte, error) {
	data, err := getBytes(ctx, c.HTTP, c.URL, c.Timeout)
	if err != nil {
		return nil, err
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, &Error{Kind: ErrFetch, URL: c.URL, Msg: "decode market CSV", Err: err}
	}
	return out, nil
}

// Fetch downloads and parses the market-data CSV.
func (c *MarketClient) Fetch(ctx context.Context) (models.MarketTable, error) {
	data, err := c.FetchMarketCSV(ctx)
	if err != nil {
		return nil, err
	}
	table, err := ParseMarketCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, parseError("market data: no %s rows", DomesticETFMarket)
	}
	return table, nil
}

// ParseMarketCSV reads the fixed-position CSV, keeping only domestic ETF
// rows keyed by their normalized code. Numeric cells that are blank, "-" or
// unparseable become absent values.
func ParseMarketCSV(r io.Reader) (models.MarketTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	table := models.MarketTable{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError("market data: %v", err)
		}
		if len(row) <= colNameJA {
			continue
		}
		if strings.TrimSpace(row[colMarket]) != DomesticETFMarket {
			continue
		}
		code := utils.NormalizeCode(row[colCode])
		if code == "" {
			continue
		}

		entry := models.MarketEntry{
			NameJA:        strings.TrimSpace(row[colNameJA]),
			NameEN:        strings.TrimSpace(row[colNameEN]),
			Fee:           ParseOptionalFloat(row[colFee]),
			DividendYield: ParseOptionalFloat(row[colDividendYield]),
			Returns:       make(map[models.Period]*float64, len(periodColumns)),
		}
		for p, col := range periodColumns {
			entry.Returns[p] = ParseOptionalFloat(row[col])
		}
		table[code] = entry
	}
	return table, nil
}

// ParseOptionalFloat parses s permissively: blank, "-", NaN, infinities
// and anything unparseable yield nil.
func ParseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
