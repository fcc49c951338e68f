package datasource

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"

	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

// Header markers identifying the fee table columns.
const (
	feeCodeHeader = "コード"
	feeRateHeader = "信託報酬"
)

var feePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// FeeClient downloads the JPX ETF fee page.
type FeeClient struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

// FetchFeeHTML downloads the fee page decoded to UTF-8.
func (c *FeeClient) FetchFeeHTML(ctx context.Context) (string, error) {
	return getText(ctx, c.HTTP, c.URL, c.Timeout)
}

// Fetch downloads and parses the fee page.
func (c *FeeClient) Fetch(ctx context.Context) (models.FeeTable, error) {
	html, err := c.FetchFeeHTML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseFeeHTML(strings.NewReader(html))
}

// ParseFeeHTML extracts code → fee (percent) from every table on the page
// that has both a code column and a fee column. Codes must be all digits;
// rows without a parseable fee are skipped.
func ParseFeeHTML(r io.Reader) (models.FeeTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, parseError("fee page: %v", err)
	}

	fees := models.FeeTable{}
	matched := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		headerIdx, header := feeHeaderRow(rows)
		if headerIdx < 0 {
			return
		}
		codeCol, feeCol := -1, -1
		for i, h := range header {
			if strings.Contains(h, feeCodeHeader) {
				codeCol = i
			}
			if strings.Contains(h, feeRateHeader) {
				feeCol = i
			}
		}
		if codeCol < 0 || feeCol < 0 {
			return
		}
		matched = true

		rows.Each(func(i int, row *goquery.Selection) {
			if i <= headerIdx {
				return
			}
			cells := rowCells(row, "td, th")
			if codeCol >= len(cells) || feeCol >= len(cells) {
				return
			}
			code, ok := normalizeFeeCode(cells[codeCol])
			if !ok {
				return
			}
			if fee, ok := ParseFeeString(cells[feeCol]); ok {
				fees[code] = fee
			}
		})
	})

	if !matched {
		return nil, parseError("fee page: no table with %s and %s columns", feeCodeHeader, feeRateHeader)
	}
	return fees, nil
}

// ParseFeeString extracts the first number followed by a percent sign.
// Full-width digits and ％ are accepted, and trailing footnotes are ignored:
// "0.06%（注10）" → 0.06, "0.048％" → 0.048, "N/A" → not ok.
func ParseFeeString(s string) (float64, bool) {
	m := feePattern.FindStringSubmatch(width.Fold.String(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// feeHeaderRow returns the index and cell texts of the header row: the
// first row made of <th> cells, or the first row when the table has none.
func feeHeaderRow(rows *goquery.Selection) (int, []string) {
	idx := -1
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if row.Find("th").Length() > 0 {
			idx = i
			return false
		}
		return true
	})
	if idx < 0 {
		if rows.Length() == 0 {
			return -1, nil
		}
		idx = 0
	}
	return idx, rowCells(rows.Eq(idx), "th, td")
}

// rowCells returns the folded text of each cell, repeating cells that span
// several columns so positions line up with the header.
func rowCells(row *goquery.Selection, selector string) []string {
	var cells []string
	row.Find(selector).Each(func(_ int, cell *goquery.Selection) {
		text := width.Fold.String(strings.Join(strings.Fields(cell.Text()), " "))
		span := 1
		if raw, ok := cell.Attr("colspan"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 1 && n < 100 {
				span = n
			}
		}
		for i := 0; i < span; i++ {
			cells = append(cells, text)
		}
	})
	return cells
}

// normalizeFeeCode trims a code cell, drops a float artefact ".0" and
// requires the rest to be digits.
func normalizeFeeCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	code = strings.TrimSuffix(code, ".0")
	if !utils.IsDigits(code) {
		return "", false
	}
	return code, true
}
