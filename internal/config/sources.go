package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
)

// ValueOrigin represents where a configured endpoint comes from.
type ValueOrigin string

const (
	OriginEnv     ValueOrigin = "env"
	OriginConfig  ValueOrigin = "config"
	OriginDefault ValueOrigin = "default"
	OriginNone    ValueOrigin = "none"
)

// SourceStatus describes one configured upstream endpoint.
type SourceStatus struct {
	Name   string      `json:"name"`
	URL    string      `json:"url,omitempty"`
	Host   string      `json:"host,omitempty"`
	Origin ValueOrigin `json:"origin"`
}

// CheckSources returns the status of every upstream endpoint, PCF providers first.
func CheckSources(cfg *Config) []SourceStatus {
	defaults := Default()

	var out []SourceStatus
	pcfOrigin := originOf(strings.Join(cfg.PCF.ProviderURLs, ","),
		strings.Join(defaults.PCF.ProviderURLs, ","), EnvPrefix+"_PCF_PROVIDER_URLS")
	if len(cfg.PCF.ProviderURLs) == 0 {
		out = append(out, SourceStatus{Name: "PCF provider", Origin: OriginNone})
	}
	for i, tmpl := range cfg.PCF.ProviderURLs {
		out = append(out, SourceStatus{
			Name:   "PCF provider #" + strconv.Itoa(i+1),
			URL:    tmpl,
			Host:   hostOf(tmpl),
			Origin: pcfOrigin,
		})
	}

	out = append(out,
		checkSource("Fee table", cfg.Sources.FeeURL, defaults.Sources.FeeURL, EnvPrefix+"_SOURCES_FEE_URL"),
		checkSource("Security master", cfg.Sources.MasterURL, defaults.Sources.MasterURL, EnvPrefix+"_SOURCES_MASTER_URL"),
		checkSource("Market data", cfg.Sources.MarketURL, defaults.Sources.MarketURL, EnvPrefix+"_SOURCES_MARKET_URL"),
	)
	return out
}

// checkSource reports a single endpoint and where its value came from.
func checkSource(name, value, def, envVar string) SourceStatus {
	return SourceStatus{
		Name:   name,
		URL:    value,
		Host:   hostOf(value),
		Origin: originOf(value, def, envVar),
	}
}

func originOf(value, def, envVar string) ValueOrigin {
	switch {
	case value == "":
		return OriginNone
	case os.Getenv(envVar) != "":
		return OriginEnv
	case value != def:
		return OriginConfig
	default:
		return OriginDefault
	}
}

// hostOf extracts the host of a URL or URL template; "{code}" only ever appears in the path.
func hostOf(raw string) string {
	u, err := url.Parse(strings.ReplaceAll(raw, CodePlaceholder, "0"))
	if err != nil {
		return ""
	}
	return u.Host
}
