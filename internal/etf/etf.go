// Package etf reconciles constituent files with the cached side data into
// one ETF view: localized names, fee, net asset value and rankings.
package etf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/jpxetf/internal/infra"
	"github.com/seenimoa/jpxetf/internal/logger"
	"github.com/seenimoa/jpxetf/pkg/models"
)

// DefaultTopN is the number of holdings Top returns when n is not positive.
const DefaultTopN = 10

// MarketSource provides the market-data table.
type MarketSource interface {
	Market(ctx context.Context, refresh bool) infra.Result[models.MarketTable]
}

// Sources is everything an ETF reads from. *datasource.Aggregator implements it.
type Sources interface {
	MarketSource
	PCF(ctx context.Context, code string) (models.ETFInfo, []models.Holding, error)
	Fees(ctx context.Context, refresh bool) infra.Result[models.FeeTable]
	Names(ctx context.Context, refresh bool) infra.Result[models.NameTable]
}

// Options configures an ETF.
type Options struct {
	Lang models.Lang // empty means Japanese
	Log  logrus.FieldLogger
}

// ETF is a lazily loaded view of one fund. The constituent file is fetched
// at most once successfully; the fee is resolved at most once. An ETF is
// safe for concurrent use.
type ETF struct {
	code string
	src  Sources
	lang models.Lang
	log  logrus.FieldLogger

	mu       sync.Mutex
	loaded   bool
	info     models.ETFInfo
	holdings []models.Holding
	warnings []models.Warning

	feeMu       sync.Mutex
	feeResolved bool
	fee         float64
	hasFee      bool
}

// New creates an ETF for code. Nothing is fetched until first access.
func New(code string, src Sources, opts Options) *ETF {
	lang := opts.Lang
	if lang == "" {
		lang = models.LangJA
	}
	code = strings.TrimSpace(code)
	return &ETF{
		code: code,
		src:  src,
		lang: lang,
		log:  logger.WithComponent(opts.Log, "etf").WithField("code", code),
	}
}

// Code returns the requested security code.
func (e *ETF) Code() string { return e.code }

// String renders the ETF as ETF('1306').
func (e *ETF) String() string { return fmt.Sprintf("ETF('%s')", e.code) }

// Load fetches and parses the constituent file if it has not been loaded.
// Errors are not remembered, so a later call retries.
func (e *ETF) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	info, holdings, err := e.src.PCF(ctx, e.code)
	if err != nil {
		return err
	}
	if e.lang == models.LangJA {
		info, holdings = e.localize(ctx, info, holdings)
	}

	e.info, e.holdings, e.loaded = info, holdings, true
	return nil
}

// Info returns the fund header, loading it on first use.
func (e *ETF) Info(ctx context.Context) (models.ETFInfo, error) {
	if err := e.Load(ctx); err != nil {
		return models.ETFInfo{}, err
	}
	return e.info, nil
}

// Holdings returns a copy of the constituents, loading them on first use.
func (e *ETF) Holdings(ctx context.Context) ([]models.Holding, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	return append([]models.Holding(nil), e.holdings...), nil
}

// Warnings returns the non-fatal issues found while loading.
func (e *ETF) Warnings() []models.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Warning(nil), e.warnings...)
}

// NAV returns round(cash component + Σ shares × price) in yen.
func (e *ETF) NAV(ctx context.Context) (int64, error) {
	if err := e.Load(ctx); err != nil {
		return 0, err
	}
	total := e.info.CashComponent
	for _, h := range e.holdings {
		total += h.MarketValue()
	}
	return int64(math.Round(total)), nil
}

// Fee returns the trust fee in percent. The fee table is consulted first,
// then the market data. The answer, including "none", is kept for the
// lifetime of the ETF.
func (e *ETF) Fee(ctx context.Context) (float64, bool) {
	e.feeMu.Lock()
	defer e.feeMu.Unlock()
	if e.feeResolved {
		return e.fee, e.hasFee
	}

	if v, ok := e.src.Fees(ctx, false).Value[e.code]; ok {
		e.fee, e.hasFee = v, true
	} else if entry, ok := e.src.Market(ctx, false).Value[e.code]; ok && entry.Fee != nil {
		e.fee, e.hasFee = *entry.Fee, true
	}
	e.feeResolved = true
	return e.fee, e.hasFee
}

// Top returns the n heaviest holdings with weights in percent. A
// non-positive n means DefaultTopN.
func (e *ETF) Top(ctx context.Context, n int) ([]models.TopHolding, error) {
	holdings, err := e.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultTopN
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].Weight > holdings[j].Weight
	})
	if n > len(holdings) {
		n = len(holdings)
	}

	top := make([]models.TopHolding, n)
	for i, h := range holdings[:n] {
		top[i] = models.TopHolding{Code: h.Code, Name: h.Name, WeightPct: h.Weight * 100}
	}
	return top, nil
}

// localize replaces names with their Japanese form from the security
// master. Missing codes trigger one forced master refresh; codes still
// missing afterwards keep their original names and produce a warning.
func (e *ETF) localize(ctx context.Context, info models.ETFInfo, holdings []models.Holding) (models.ETFInfo, []models.Holding) {
	codes := collectCodes(info, holdings)
	if len(codes) == 0 {
		return info, holdings
	}

	names := e.src.Names(ctx, false).Value
	missing := missingCodes(codes, names)
	if len(missing) > 0 {
		e.log.WithField("missing", len(missing)).Debug("names missing, refreshing security master")
		names = e.src.Names(ctx, true).Value
		missing = missingCodes(codes, names)
	}

	if name, ok := names[info.Code]; ok {
		info = info.WithName(name)
	}
	out := make([]models.Holding, len(holdings))
	for i, h := range holdings {
		if name, ok := names[h.Code]; ok {
			h = h.WithName(name)
		}
		out[i] = h
	}

	if len(missing) > 0 {
		w := models.Warning{
			Code:    models.WarnMissingNames,
			Message: fmt.Sprintf("no Japanese name for %d code(s): %s", len(missing), strings.Join(missing, ", ")),
			Codes:   missing,
		}
		e.warnings = append(e.warnings, w)
		e.log.WithField("codes", missing).Warn(w.Message)
	}
	return info, out
}

// collectCodes returns the fund code and every holding code, deduplicated, blanks dropped.
func collectCodes(info models.ETFInfo, holdings []models.Holding) []string {
	seen := make(map[string]bool, len(holdings)+1)
	var codes []string
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		codes = append(codes, c)
	}
	add(info.Code)
	for _, h := range holdings {
		add(h.Code)
	}
	return codes
}

func missingCodes(codes []string, names models.NameTable) []string {
	var missing []string
	for _, c := range codes {
		if _, ok := names[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}
