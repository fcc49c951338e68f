package etf

import (
	"context"
	"sort"

	"github.com/seenimoa/jpxetf/pkg/models"
)

// Rank orders the market table by return over period. Entries without a
// value for the period are skipped. n > 0 keeps the best n, n < 0 keeps the
// worst |n| in ascending order, and n == 0 keeps everything, best first.
// Equal returns are ordered by code.
func Rank(table models.MarketTable, period models.Period, n int, lang models.Lang) ([]models.RankEntry, error) {
	period, err := models.ParsePeriod(string(period))
	if err != nil {
		return nil, err
	}

	entries := make([]models.RankEntry, 0, len(table))
	for code, m := range table {
		ret, ok := m.Return(period)
		if !ok {
			continue
		}
		entries = append(entries, models.RankEntry{
			Code:          code,
			Name:          m.Name(lang),
			Return:        ret,
			Fee:           m.Fee,
			DividendYield: m.DividendYield,
		})
	}

	ascending := n < 0
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Return != b.Return {
			if ascending {
				return a.Return < b.Return
			}
			return a.Return > b.Return
		}
		return a.Code < b.Code
	})

	if n < 0 {
		n = -n
	}
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

// Ranking loads the market table from src and ranks it. An unavailable
// market table yields an empty ranking, not an error.
func Ranking(ctx context.Context, src MarketSource, period models.Period, n int, lang models.Lang) ([]models.RankEntry, error) {
	if _, err := models.ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	return Rank(src.Market(ctx, false).Value, period, n, lang)
}
