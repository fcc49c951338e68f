package etf

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/jpxetf/internal/infra"
	"github.com/seenimoa/jpxetf/pkg/models"
)

// fakeSources is an in-memory Sources that records how it was called.
type fakeSources struct {
	mu sync.Mutex

	info     models.ETFInfo
	holdings []models.Holding
	pcfErrs  []error // consumed one per PCF call before succeeding

	fees         models.FeeTable
	names        models.NameTable
	refreshNames models.NameTable // returned by a forced Names call, if set
	market       models.MarketTable

	pcfCalls    int
	feeCalls    int
	marketCalls int
	nameCalls   []bool // refresh flag of each call
}

func (f *fakeSources) PCF(ctx context.Context, code string) (models.ETFInfo, []models.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcfCalls++
	if len(f.pcfErrs) > 0 {
		err := f.pcfErrs[0]
		f.pcfErrs = f.pcfErrs[1:]
		return models.ETFInfo{}, nil, err
	}
	return f.info, append([]models.Holding(nil), f.holdings...), nil
}

func (f *fakeSources) Fees(ctx context.Context, refresh bool) infra.Result[models.FeeTable] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeCalls++
	return infra.Result[models.FeeTable]{Value: f.fees, Source: infra.FromMemory}
}

func (f *fakeSources) Names(ctx context.Context, refresh bool) infra.Result[models.NameTable] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls = append(f.nameCalls, refresh)
	if refresh && f.refreshNames != nil {
		return infra.Result[models.NameTable]{Value: f.refreshNames, Source: infra.Fetched}
	}
	return infra.Result[models.NameTable]{Value: f.names, Source: infra.FromMemory}
}

func (f *fakeSources) Market(ctx context.Context, refresh bool) infra.Result[models.MarketTable] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	return infra.Result[models.MarketTable]{Value: f.market, Source: infra.FromMemory}
}

// topixSources mirrors the two-holding sample constituent file.
func topixSources() *fakeSources {
	return &fakeSources{
		info: models.ETFInfo{
			Code:              "1306",
			Name:              "TOPIX ETF",
			CashComponent:     496973797639.0,
			SharesOutstanding: 8133974978,
			Date:              time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		},
		holdings: []models.Holding{
			{Code: "1332", Name: "NISSUI CORPORATION", Shares: 7647000, Price: 1506.5, Weight: 11520205500.0 / 19020205500.0},
			{Code: "7203", Name: "TOYOTA MOTOR", Shares: 3000000, Price: 2500, Weight: 7500000000.0 / 19020205500.0},
		},
		names: models.NameTable{
			"1306": "TOPIX連動型上場投資信託",
			"1332": "ニッスイ",
			"7203": "トヨタ自動車",
		},
	}
}

func fee(v float64) *float64 { return &v }

// ── Loading ──

func TestLoadFetchesOnce(t *testing.T) {
	src := topixSources()
	e := New("1306", src, Options{})
	ctx := context.Background()

	if _, err := e.Info(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Holdings(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NAV(ctx); err != nil {
		t.Fatal(err)
	}
	if src.pcfCalls != 1 {
		t.Errorf("PCF calls: got %d, want 1", src.pcfCalls)
	}
}

func TestLoadErrorIsNotCached(t *testing.T) {
	src := topixSources()
	fetchErr := errors.New("provider down")
	src.pcfErrs = []error{fetchErr}
	e := New("1306", src, Options{})

	if _, err := e.Info(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("first Info: got %v", err)
	}
	info, err := e.Info(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if info.Code != "1306" || src.pcfCalls != 2 {
		t.Errorf("retry: info %+v after %d calls", info, src.pcfCalls)
	}
}

func TestHoldingsReturnsCopy(t *testing.T) {
	e := New("1306", topixSources(), Options{})
	h, _ := e.Holdings(context.Background())
	h[0].Name = "mutated"
	again, _ := e.Holdings(context.Background())
	if again[0].Name == "mutated" {
		t.Error("Holdings exposed internal slice")
	}
}

// ── Localization ──

func TestLocalizeAllNamesKnown(t *testing.T) {
	src := topixSources()
	e := New("1306", src, Options{Lang: models.LangJA})

	info, _ := e.Info(context.Background())
	holdings, _ := e.Holdings(context.Background())
	if info.Name != "TOPIX連動型上場投資信託" {
		t.Errorf("info name: %q", info.Name)
	}
	if holdings[0].Name != "ニッスイ" || holdings[1].Name != "トヨタ自動車" {
		t.Errorf("holding names: %q, %q", holdings[0].Name, holdings[1].Name)
	}
	if !reflect.DeepEqual(src.nameCalls, []bool{false}) {
		t.Errorf("Names calls: %v, want a single cached lookup", src.nameCalls)
	}
	if w := e.Warnings(); len(w) != 0 {
		t.Errorf("unexpected warnings: %+v", w)
	}
}

func TestLocalizeRefreshesOnceThenWarns(t *testing.T) {
	src := topixSources()
	delete(src.names, "7203")
	delete(src.names, "1306")
	e := New("1306", src, Options{Lang: models.LangJA})

	holdings, err := e.Holdings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(src.nameCalls, []bool{false, true}) {
		t.Errorf("Names calls: %v, want [false true]", src.nameCalls)
	}
	if holdings[0].Name != "ニッスイ" {
		t.Errorf("known code not localized: %q", holdings[0].Name)
	}
	if holdings[1].Name != "TOYOTA MOTOR" {
		t.Errorf("missing code should keep original name, got %q", holdings[1].Name)
	}

	warnings := e.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("warnings: got %d, want 1", len(warnings))
	}
	if warnings[0].Code != models.WarnMissingNames || !reflect.DeepEqual(warnings[0].Codes, []string{"1306", "7203"}) {
		t.Errorf("warning: %+v", warnings[0])
	}

	// Further access neither refetches nor warns again.
	e.Info(context.Background())
	if len(src.nameCalls) != 2 || len(e.Warnings()) != 1 {
		t.Errorf("after reuse: %d Names calls, %d warnings", len(src.nameCalls), len(e.Warnings()))
	}
}

func TestLocalizeRefreshFillsGaps(t *testing.T) {
	src := topixSources()
	full := src.names
	src.names = models.NameTable{"1306": full["1306"]}
	src.refreshNames = full
	e := New("1306", src, Options{})

	holdings, _ := e.Holdings(context.Background())
	if holdings[1].Name != "トヨタ自動車" {
		t.Errorf("refreshed name not applied: %q", holdings[1].Name)
	}
	if len(e.Warnings()) != 0 {
		t.Errorf("no warning expected: %+v", e.Warnings())
	}
}

func TestLocalizeEmptyMasterDegrades(t *testing.T) {
	src := topixSources()
	src.names = models.NameTable{}
	e := New("1306", src, Options{Lang: models.LangJA})

	info, err := e.Info(context.Background())
	if err != nil {
		t.Fatalf("empty master must not fail loading: %v", err)
	}
	if info.Name != "TOPIX ETF" {
		t.Errorf("name: %q", info.Name)
	}
	if w := e.Warnings(); len(w) != 1 || len(w[0].Codes) != 3 {
		t.Errorf("warnings: %+v", w)
	}
}

func TestEnglishSkipsMaster(t *testing.T) {
	src := topixSources()
	e := New("1306", src, Options{Lang: models.LangEN})

	info, _ := e.Info(context.Background())
	if info.Name != "TOPIX ETF" {
		t.Errorf("name: %q", info.Name)
	}
	if len(src.nameCalls) != 0 {
		t.Errorf("Names called %d times in English mode", len(src.nameCalls))
	}
}

// ── Fee ──

func TestFee(t *testing.T) {
	tests := []struct {
		name    string
		fees    models.FeeTable
		market  models.MarketTable
		want    float64
		wantOK  bool
		markets int
	}{
		{"fee table", models.FeeTable{"1306": 0.06}, models.MarketTable{"1306": {Fee: fee(0.11)}}, 0.06, true, 0},
		{"market fallback", models.FeeTable{}, models.MarketTable{"1306": {Fee: fee(0.11)}}, 0.11, true, 1},
		{"market entry without fee", models.FeeTable{}, models.MarketTable{"1306": {}}, 0, false, 1},
		{"nowhere", models.FeeTable{}, models.MarketTable{}, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSources{fees: tt.fees, market: tt.market}
			e := New("1306", src, Options{})

			for range 3 {
				got, ok := e.Fee(context.Background())
				if got != tt.want || ok != tt.wantOK {
					t.Fatalf("Fee() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
				}
			}
			if src.feeCalls != 1 || src.marketCalls != tt.markets {
				t.Errorf("source calls: fees %d, market %d", src.feeCalls, src.marketCalls)
			}
			if src.pcfCalls != 0 {
				t.Error("Fee must not load the constituent file")
			}
		})
	}
}

// ── NAV / Top ──

func TestNAV(t *testing.T) {
	e := New("1306", topixSources(), Options{})
	nav, err := e.NAV(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := int64(math.Round(496973797639.0 + 7647000*1506.5 + 3000000*2500.0))
	if nav != want {
		t.Errorf("NAV: got %d, want %d", nav, want)
	}
}

func TestNAVPropagatesLoadError(t *testing.T) {
	src := topixSources()
	src.pcfErrs = []error{errors.New("boom")}
	if _, err := New("1306", src, Options{}).NAV(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestTop(t *testing.T) {
	src := topixSources()
	src.holdings = append(src.holdings, models.Holding{Code: "9984", Name: "SOFTBANK", Weight: 0.9})
	e := New("1306", src, Options{Lang: models.LangEN})

	top, err := e.Top(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Code != "9984" || top[1].Code != "1332" {
		t.Fatalf("Top(2): %+v", top)
	}
	if math.Abs(top[0].WeightPct-90) > 1e-9 {
		t.Errorf("weight pct: %v", top[0].WeightPct)
	}

	all, _ := e.Top(context.Background(), 0)
	if len(all) != 3 {
		t.Errorf("Top(0) should cap at the holding count, got %d", len(all))
	}
	holdings, _ := e.Holdings(context.Background())
	if holdings[0].Code != "1332" {
		t.Error("Top reordered the stored holdings")
	}
}

func TestString(t *testing.T) {
	e := New(" 1306 ", &fakeSources{}, Options{})
	if e.String() != "ETF('1306')" || e.Code() != "1306" {
		t.Errorf("String: %s, Code: %s", e, e.Code())
	}
}
