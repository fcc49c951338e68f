package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/datasource"
	"github.com/seenimoa/jpxetf/internal/etf"
	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// writeStructured encodes v as indented JSON or YAML.
func writeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not structured", format)
}

// newTable returns a borderless table writer mirroring to w.
func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Format.Header = text.FormatDefault
	return tw
}

func rightAligned(columns ...int) []table.ColumnConfig {
	cfgs := make([]table.ColumnConfig, len(columns))
	for i, n := range columns {
		cfgs[i] = table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignRight}
	}
	return cfgs
}

// ── show ──

type showView struct {
	Info       models.ETFInfo      `json:"info"        yaml:"info"`
	NAV        int64               `json:"nav"         yaml:"nav"`
	NAVDisplay string              `json:"nav_display" yaml:"nav_display"`
	Fee        *float64            `json:"fee"         yaml:"fee"`
	Holdings   []models.TopHolding `json:"holdings"    yaml:"holdings"`
	Warnings   []models.Warning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// buildShowView loads everything the show command prints. Without all,
// only the top holdings by weight are kept.
func buildShowView(ctx context.Context, e *etf.ETF, all bool) (showView, error) {
	info, err := e.Info(ctx)
	if err != nil {
		return showView{}, err
	}
	nav, err := e.NAV(ctx)
	if err != nil {
		return showView{}, err
	}

	var holdings []models.TopHolding
	if all {
		hs, err := e.Holdings(ctx)
		if err != nil {
			return showView{}, err
		}
		holdings = make([]models.TopHolding, len(hs))
		for i, h := range hs {
			holdings[i] = models.TopHolding{Code: h.Code, Name: h.Name, WeightPct: h.Weight * 100}
		}
	} else if holdings, err = e.Top(ctx, etf.DefaultTopN); err != nil {
		return showView{}, err
	}

	view := showView{
		Info:       info,
		NAV:        nav,
		NAVDisplay: utils.FormatYen(nav),
		Holdings:   holdings,
		Warnings:   e.Warnings(),
	}
	if fee, ok := e.Fee(ctx); ok {
		view.Fee = &fee
	}
	return view, nil
}

func renderShow(w io.Writer, v showView, lang models.Lang) {
	fmt.Fprintf(w, "\n%s  %s (%s)\n", v.Info.Code, v.Info.Name, utils.FormatDateJST(v.Info.Date))

	meta := []string{"Nav: " + v.NAVDisplay}
	if v.Fee != nil {
		label := "Fee"
		if lang == models.LangJA {
			label = "信託報酬"
		}
		meta = append(meta, fmt.Sprintf("%s: %g%%", label, *v.Fee))
	}
	fmt.Fprintln(w, strings.Join(meta, "  "))
	fmt.Fprintln(w)

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Code", "Name", "Weight"})
	tw.SetColumnConfigs(rightAligned(3))
	for _, h := range v.Holdings {
		tw.AppendRow(table.Row{h.Code, h.Name, fmt.Sprintf("%.1f%%", h.WeightPct)})
	}
	tw.Render()
}

// ── rank ──

func renderRanking(w io.Writer, entries []models.RankEntry, period models.Period) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No data available.")
		return
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Code", "Name", fmt.Sprintf("Return (%s)", period), "Fee", "Yield"})
	tw.SetColumnConfigs(rightAligned(3, 4, 5))
	for _, e := range entries {
		fee := "-"
		if e.Fee != nil {
			fee = fmt.Sprintf("%.2f", *e.Fee)
		}
		tw.AppendRow(table.Row{e.Code, e.Name, fmt.Sprintf("%.2f%%", e.Return), fee, utils.FormatOptionalPct(e.DividendYield)})
	}
	tw.Render()
}

// ── refresh ──

func renderRefresh(w io.Writer, reports []datasource.RefreshReport) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Source", "Outcome", "Entries", "Error"})
	tw.SetColumnConfigs(rightAligned(3))
	for _, r := range reports {
		tw.AppendRow(table.Row{r.Name, r.Source.String(), r.Entries, r.Error})
	}
	tw.Render()
}

// ── status ──

type statusView struct {
	Version   string
	Commit    string
	Now       time.Time
	PCFStatus string
	Sources   []config.SourceStatus
	Cache     []datasource.CacheStatus
	CacheDir  string
}

func renderStatus(w io.Writer, v statusView) {
	fmt.Fprintf(w, "jpxetf %s (%s)\n", v.Version, v.Commit)
	fmt.Fprintf(w, "  Time (JST):  %s\n", utils.FormatDateTimeJST(v.Now))
	fmt.Fprintf(w, "  PCF files:   %s (published %s-%s JST on business days)\n",
		v.PCFStatus, utils.PCFWindowOpens, utils.PCFWindowCloses)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Sources:")
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Source", "Host", "Origin"})
	for _, s := range v.Sources {
		host := s.Host
		if host == "" {
			host = "-"
		}
		tw.AppendRow(table.Row{s.Name, host, string(s.Origin)})
	}
	tw.Render()
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Cache (%s):\n", v.CacheDir)
	tw = newTable(w)
	tw.AppendHeader(table.Row{"Source", "TTL", "Snapshot", "State"})
	for _, c := range v.Cache {
		snapshot, state := "-", "empty"
		if c.SnapshotAt != nil {
			snapshot = utils.FormatDateTimeJST(*c.SnapshotAt)
			state = "stale"
			if c.Fresh {
				state = "fresh"
			}
		}
		tw.AppendRow(table.Row{c.Name, c.TTL.String(), snapshot, state})
	}
	tw.Render()
}
