package datasource

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/extrame/xls"

	"github.com/seenimoa/jpxetf/pkg/models"
)

// Fixed column positions in the header-less master sheet.
const (
	masterCodeCol = 1
	masterNameCol = 2
)

// missingCell is how an empty spreadsheet cell is rendered by some exporters.
const missingCell = "nan"

// MasterClient downloads the JPX listed-issues spreadsheet.
type MasterClient struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

// FetchMaster downloads the spreadsheet and returns the first sheet as rows of cell text.
func (c *MasterClient) FetchMaster(ctx context.Context) ([][]string, error) {
	data, err := getBytes(ctx, c.HTTP, c.URL, c.Timeout)
	if err != nil {
		return nil, err
	}
	return DecodeXLS(data)
}

// Fetch downloads the spreadsheet and builds the code → name table.
func (c *MasterClient) Fetch(ctx context.Context) (models.NameTable, error) {
	rows, err := c.FetchMaster(ctx)
	if err != nil {
		return nil, err
	}
	names := ParseMasterRows(rows)
	if len(names) == 0 {
		return nil, parseError("security master: no code/name rows")
	}
	return names, nil
}

// DecodeXLS reads the first worksheet of a BIFF (.xls) workbook.
// The decoder panics on some malformed inputs; those are reported as parse errors.
func DecodeXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, parseError("security master: malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, parseError("security master: %v", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, parseError("security master: workbook has no sheets")
	}

	rows = make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		last := row.LastCol()
		if last <= 0 {
			continue
		}
		cells := make([]string, last)
		for j := row.FirstCol(); j < last; j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ParseMasterRows maps column 1 (code) to column 2 (name), skipping rows
// where either is blank or the "nan" placeholder.
func ParseMasterRows(rows [][]string) models.NameTable {
	names := models.NameTable{}
	for _, row := range rows {
		if len(row) <= masterNameCol {
			continue
		}
		code := strings.TrimSuffix(strings.TrimSpace(row[masterCodeCol]), ".0")
		name := strings.TrimSpace(row[masterNameCol])
		if code == "" || name == "" || code == missingCell || name == missingCell {
			continue
		}
		names[code] = name
	}
	return names
}
