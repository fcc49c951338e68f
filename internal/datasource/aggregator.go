package datasource

import (
	"context"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/infra"
	"github.com/seenimoa/jpxetf/internal/logger"
	"github.com/seenimoa/jpxetf/pkg/models"
)

// Snapshot names, one file per cached source.
const (
	StoreFees   = "fees"
	StoreNames  = "master"
	StoreMarket = "market"
)

// Options configures an Aggregator. Zero fields get defaults.
type Options struct {
	HTTP    *http.Client
	Backend infra.Backend  // nil uses a FileBackend under cfg.Cache.Dir
	Clock   infra.Clock    // nil uses the system clock
	Memory  *gocache.Cache // nil gives the aggregator its own memory tier
	Sleep   infra.SleepFunc
	Log     logrus.FieldLogger
}

// Aggregator owns the PCF client and the three cached side-data sources.
type Aggregator struct {
	pcf    *PCFClient
	fees   *infra.Store[models.FeeTable]
	names  *infra.Store[models.NameTable]
	market *infra.Store[models.MarketTable]
	log    logrus.FieldLogger
}

// NewAggregator creates an aggregator from config with default options.
func NewAggregator(cfg *config.Config, log logrus.FieldLogger) *Aggregator {
	return NewAggregatorWith(cfg, Options{Log: log})
}

// NewAggregatorWith creates an aggregator with explicit collaborators.
func NewAggregatorWith(cfg *config.Config, opts Options) *Aggregator {
	log := logger.OrDiscard(opts.Log)
	if opts.Backend == nil {
		opts.Backend = infra.FileBackend{Dir: cfg.Cache.Dir}
	}
	if opts.Memory == nil {
		opts.Memory = infra.NewMemory()
	}

	pcf := NewPCFClient(cfg.PCF, log)
	pcf.HTTP = opts.HTTP
	pcf.Sleep = opts.Sleep

	feeClient := &FeeClient{URL: cfg.Sources.FeeURL, Timeout: cfg.Sources.Timeout, HTTP: opts.HTTP}
	masterClient := &MasterClient{URL: cfg.Sources.MasterURL, Timeout: cfg.Sources.Timeout, HTTP: opts.HTTP}
	marketClient := &MarketClient{URL: cfg.Sources.MarketURL, Timeout: cfg.Sources.Timeout, HTTP: opts.HTTP}

	return &Aggregator{
		pcf: pcf,
		fees: infra.NewStore(infra.StoreOptions[models.FeeTable]{
			Name: StoreFees, TTL: cfg.Cache.FeeTTL, Fetch: feeClient.Fetch,
			Backend: opts.Backend, Clock: opts.Clock, Memory: opts.Memory, Log: log,
			Empty: func() models.FeeTable { return models.FeeTable{} },
		}),
		names: infra.NewStore(infra.StoreOptions[models.NameTable]{
			Name: StoreNames, TTL: cfg.Cache.MasterTTL, Fetch: masterClient.Fetch,
			Backend: opts.Backend, Clock: opts.Clock, Memory: opts.Memory, Log: log,
			Empty: func() models.NameTable { return models.NameTable{} },
		}),
		market: infra.NewStore(infra.StoreOptions[models.MarketTable]{
			Name: StoreMarket, TTL: cfg.Cache.MarketTTL, Fetch: marketClient.Fetch,
			Backend: opts.Backend, Clock: opts.Clock, Memory: opts.Memory, Log: log,
			Empty: func() models.MarketTable { return models.MarketTable{} },
		}),
		log: log,
	}
}

// PCF fetches and parses the constituent file for code. It is never cached.
func (a *Aggregator) PCF(ctx context.Context, code string) (models.ETFInfo, []models.Holding, error) {
	return a.pcf.FetchParsed(ctx, code)
}

// PCFText returns the raw constituent file for code.
func (a *Aggregator) PCFText(ctx context.Context, code string) (string, error) {
	return a.pcf.Fetch(ctx, code)
}

// Fees returns the code → fee table. Failures degrade, never error.
func (a *Aggregator) Fees(ctx context.Context, refresh bool) infra.Result[models.FeeTable] {
	return a.fees.Get(ctx, refresh)
}

// Names returns the code → Japanese name table. Failures degrade, never error.
func (a *Aggregator) Names(ctx context.Context, refresh bool) infra.Result[models.NameTable] {
	return a.names.Get(ctx, refresh)
}

// Market returns the code → market data table. Failures degrade, never error.
func (a *Aggregator) Market(ctx context.Context, refresh bool) infra.Result[models.MarketTable] {
	return a.market.Get(ctx, refresh)
}

// RefreshReport summarises one forced refresh.
type RefreshReport struct {
	Name    string        `json:"name"    yaml:"name"`
	Source  infra.Outcome `json:"source"  yaml:"source"`
	Entries int           `json:"entries" yaml:"entries"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func report[T any](name string, res infra.Result[T], entries int) RefreshReport {
	r := RefreshReport{Name: name, Source: res.Source, Entries: entries}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// RefreshAll force-refreshes every cached source, one after another.
func (a *Aggregator) RefreshAll(ctx context.Context) []RefreshReport {
	fees := a.Fees(ctx, true)
	names := a.Names(ctx, true)
	market := a.Market(ctx, true)

	reports := []RefreshReport{
		report(StoreFees, fees, len(fees.Value)),
		report(StoreNames, names, len(names.Value)),
		report(StoreMarket, market, len(market.Value)),
	}
	for _, r := range reports {
		entry := a.log.WithFields(logrus.Fields{"source": r.Name, "outcome": r.Source.String(), "entries": r.Entries})
		if r.Error != "" {
			entry.Warn("refresh degraded")
			continue
		}
		entry.Info("refreshed")
	}
	return reports
}

// CacheStatus describes the persisted snapshot of one source.
type CacheStatus struct {
	Name       string        `json:"name"                  yaml:"name"`
	TTL        time.Duration `json:"ttl"                   yaml:"ttl"`
	SnapshotAt *time.Time    `json:"snapshot_at,omitempty" yaml:"snapshot_at,omitempty"`
	Fresh      bool          `json:"fresh"                 yaml:"fresh"`
}

// CacheStatus reports snapshot age and freshness for every cached source.
func (a *Aggregator) CacheStatus(now time.Time) []CacheStatus {
	return []CacheStatus{
		snapshotStatus(a.fees, now),
		snapshotStatus(a.names, now),
		snapshotStatus(a.market, now),
	}
}

func snapshotStatus[T any](s *infra.Store[T], now time.Time) CacheStatus {
	st := CacheStatus{Name: s.Name(), TTL: s.TTL()}
	if ts, ok := s.SnapshotTime(); ok {
		st.SnapshotAt = &ts
		st.Fresh = now.Sub(ts) < s.TTL()
	}
	return st
}

// ClearCache drops memory and snapshot state for every cached source.
func (a *Aggregator) ClearCache() error {
	for _, clearFn := range []func() error{a.fees.Clear, a.names.Clear, a.market.Clear} {
		if err := clearFn(); err != nil {
			return err
		}
	}
	return nil
}
