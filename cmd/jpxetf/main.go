// jpxetf: JPX ETF portfolio composition, fees and return rankings.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/jpxetf/api"
	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/datasource"
	"github.com/seenimoa/jpxetf/internal/etf"
	"github.com/seenimoa/jpxetf/internal/logger"
	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global state, set up by the root command.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	rootCmd.SetArgs(liftNegativeInts(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jpxetf",
	Short: "JPX ETF portfolio composition, fees and rankings",
	Long: `jpxetf fetches portfolio composition files (PCF) of ETFs listed on the
Tokyo Stock Exchange, resolves holding names against the JPX security
master, and ranks ETFs by published returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log, err = logger.New(cfg.Logging)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(feesCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func newAggregator() *datasource.Aggregator {
	return datasource.NewAggregator(cfg, log)
}

// langFor returns English when --en is set, otherwise the configured language.
func langFor(cmd *cobra.Command) models.Lang {
	if en, _ := cmd.Flags().GetBool("en"); en {
		return models.LangEN
	}
	lang, err := models.ParseLang(cfg.Lang)
	if err != nil {
		return models.LangJA
	}
	return lang
}

func formatFlag(cmd *cobra.Command) (outputFormat, error) {
	raw, _ := cmd.Flags().GetString("output")
	return parseFormat(raw)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "jpxetf %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Show Command ---

var showCmd = &cobra.Command{
	Use:   "show <code|alias>",
	Short: "Show an ETF's composition, fee and net asset value",
	Example: `  jpxetf show 1306        Top 10 holdings of TOPIX ETF
  jpxetf show topix --en -a   All holdings in English`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		lang := langFor(cmd)
		ctx := cmd.Context()

		e := etf.New(utils.ResolveCode(args[0]), newAggregator(), etf.Options{Lang: lang, Log: log})
		view, err := buildShowView(ctx, e, all)
		if err != nil {
			return err
		}
		for _, w := range view.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w.Message)
		}

		if format != formatTable {
			return writeStructured(cmd.OutOrStdout(), format, view)
		}
		renderShow(cmd.OutOrStdout(), view, lang)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("en", false, "show English names")
	showCmd.Flags().BoolP("all", "a", false, "show every holding instead of the top 10")
	showCmd.Flags().StringP("output", "o", "table", "output format (table, json, yaml)")
}

// --- Rank Command ---

var rankCmd = &cobra.Command{
	Use:   "rank [n] [period]",
	Short: "Rank ETFs by return",
	Long: `Rank TSE-listed ETFs by published return over a period.

n > 0 lists the best n, n < 0 the worst |n|, and n = 0 every ETF.
Periods: 1m (default), 3m, 6m, 1y, 3y, 5y, 10y, ytd.`,
	Example: `  jpxetf rank             Top 10 by 1-month return
  jpxetf rank -5 1y       Worst 5 by 1-year return`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		n, period, err := parseRankArgs(args)
		if err != nil {
			return err
		}
		lang := langFor(cmd)

		entries, err := etf.Ranking(cmd.Context(), newAggregator(), period, n, lang)
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(cmd.OutOrStdout(), format, entries)
		}
		renderRanking(cmd.OutOrStdout(), entries, period)
		return nil
	},
}

func init() {
	rankCmd.Flags().Bool("en", false, "show English names")
	rankCmd.Flags().StringP("output", "o", "table", "output format (table, json, yaml)")
}

// parseRankArgs accepts n and period in either order, like "rank 5 1y" or "rank ytd".
func parseRankArgs(args []string) (int, models.Period, error) {
	n, period := 10, models.Period1M
	for _, arg := range args {
		if p, err := models.ParsePeriod(arg); err == nil {
			period = p
			continue
		}
		v, err := strconv.Atoi(arg)
		if err != nil {
			return 0, "", fmt.Errorf("invalid argument %q", arg)
		}
		n = v
	}
	return n, period, nil
}

// Flags that consume the following token as their value.
var valueFlags = map[string]bool{
	"--config":    true,
	"--log-level": true,
	"-o":          true,
	"--output":    true,
}

// liftNegativeInts moves negative integers given to rank behind a "--" so
// that "rank -5 1y" is not parsed as the shorthand flag -5.
// Other command lines are returned unchanged.
func liftNegativeInts(args []string) []string {
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		if valueFlags[a] {
			i++
		}
	}
	if i >= len(args) || args[i] != rankCmd.Name() {
		return args
	}

	var (
		kept      = append([]string{}, args[:i+1]...)
		negatives []string
		rest      []string
	)
scan:
	for j := i + 1; j < len(args); j++ {
		a := args[j]
		switch {
		case a == "--":
			rest = args[j+1:]
			break scan
		case valueFlags[a]:
			kept = append(kept, a)
			if j+1 < len(args) {
				j++
				kept = append(kept, args[j])
			}
		case len(a) > 1 && a[0] == '-' && utils.IsDigits(a[1:]):
			negatives = append(negatives, a)
		default:
			kept = append(kept, a)
		}
	}
	if len(negatives) == 0 {
		return args
	}
	kept = append(kept, "--")
	kept = append(kept, negatives...)
	return append(kept, rest...)
}

// --- Fees Command ---

var feesCmd = &cobra.Command{
	Use:   "fees <code|alias>...",
	Short: "Show trust fees",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agg := newAggregator()
		out := cmd.OutOrStdout()
		for _, arg := range args {
			code := utils.ResolveCode(arg)
			fee, ok := etf.New(code, agg, etf.Options{Log: log}).Fee(cmd.Context())
			if !ok {
				fmt.Fprintf(out, "%s\t-\n", code)
				continue
			}
			fmt.Fprintf(out, "%s\t%s%%\n", code, strconv.FormatFloat(fee, 'f', -1, 64))
		}
		return nil
	},
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force-refresh the fee table, security master and market data",
	RunE: func(cmd *cobra.Command, args []string) error {
		agg := newAggregator()
		if clearFirst, _ := cmd.Flags().GetBool("clear"); clearFirst {
			if err := agg.ClearCache(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
		}
		renderRefresh(cmd.OutOrStdout(), agg.RefreshAll(cmd.Context()))
		return nil
	},
}

func init() {
	refreshCmd.Flags().Bool("clear", false, "delete snapshots before refreshing")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.API.Addr()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := api.NewServer(cfg, newAggregator(), api.Options{Version: version, Log: log})
		fmt.Fprintf(cmd.OutOrStdout(), "Starting jpxetf API server on %s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: api.host:api.port)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show publishing window, configured sources and cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := utils.NowJST()
		renderStatus(cmd.OutOrStdout(), statusView{
			Version:   version,
			Commit:    commit,
			Now:       now,
			PCFStatus: utils.PCFStatus(now),
			Sources:   config.CheckSources(cfg),
			Cache:     newAggregator().CacheStatus(now),
			CacheDir:  cfg.Cache.Dir,
		})
		return nil
	},
}
