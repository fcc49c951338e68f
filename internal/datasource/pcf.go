package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/jpxetf/internal/config"
	"github.com/seenimoa/jpxetf/internal/infra"
	"github.com/seenimoa/jpxetf/internal/logger"
	"github.com/seenimoa/jpxetf/pkg/models"
	"github.com/seenimoa/jpxetf/pkg/utils"
)

// PCFClient downloads constituent files, trying each provider template in order.
type PCFClient struct {
	Templates []string      // URL templates containing "{code}"
	Timeout   time.Duration // per-request
	Delay     time.Duration // before every attempt after the first
	HTTP      *http.Client
	Sleep     infra.SleepFunc
	Log       logrus.FieldLogger
}

// NewPCFClient creates a client from the pcf config section.
func NewPCFClient(cfg config.PCFConfig, log logrus.FieldLogger) *PCFClient {
	return &PCFClient{
		Templates: append([]string(nil), cfg.ProviderURLs...),
		Timeout:   cfg.Timeout,
		Delay:     cfg.RequestDelay,
		Log:       logger.WithComponent(log, "pcf"),
	}
}

// Fetch returns the raw PCF text for code from the first provider that
// serves one. Providers are tried strictly in order.
//
// When every provider fails the error is chosen as follows: no providers
// configured gives ErrNoProviders; all 404s give ErrNotFound; any
// placeholder (non-CSV) page gives ErrNotPublished; otherwise the first
// non-404 failure is returned as is.
func (c *PCFClient) Fetch(ctx context.Context, code string) (string, error) {
	log := logger.OrDiscard(c.Log).WithField("code", code)
	pacer := infra.NewPacer(c.Delay, c.Sleep)

	var failures []*Error
	for _, tmpl := range c.Templates {
		if err := pacer.Wait(ctx); err != nil {
			return "", &Error{Kind: ErrFetch, Code: code, Msg: "interrupted before next provider", Err: err}
		}

		u := ExpandTemplate(tmpl, code)
		text, ferr := c.try(ctx, code, u)
		if ferr == nil {
			log.WithField("url", u).Debug("PCF fetched")
			return text, nil
		}
		log.WithFields(logrus.Fields{"url": u, "status": ferr.StatusCode}).WithError(ferr).Debug("provider failed")
		failures = append(failures, ferr)
	}

	return "", selectError(code, failures)
}

// FetchParsed fetches and parses the PCF for code.
func (c *PCFClient) FetchParsed(ctx context.Context, code string) (models.ETFInfo, []models.Holding, error) {
	text, err := c.Fetch(ctx, code)
	if err != nil {
		return models.ETFInfo{}, nil, err
	}
	info, holdings, err := ParsePCF(text)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			perr.Code = code
		}
		return models.ETFInfo{}, nil, err
	}
	return info, holdings, nil
}

func (c *PCFClient) try(ctx context.Context, code, u string) (string, *Error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	body, resp, err := doGet(ctx, c.HTTP, u, map[string]string{"Accept": "text/csv, text/plain, */*"})
	if err != nil {
		var herr *ErrHTTP
		switch {
		case errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound:
			return "", &Error{Kind: ErrNotFound, Code: code, URL: u, StatusCode: herr.StatusCode,
				Msg: fmt.Sprintf("ETF %s not found at %s", code, u)}
		case errors.As(err, &herr):
			return "", &Error{Kind: ErrFetch, Code: code, URL: u, StatusCode: herr.StatusCode,
				Msg: fmt.Sprintf("HTTP %d from %s", herr.StatusCode, u)}
		default:
			return "", &Error{Kind: ErrFetch, Code: code, URL: u, Msg: "request failed for " + u, Err: err}
		}
	}
	defer body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(body, 4096))
		return "", &Error{Kind: ErrFetch, Code: code, URL: u, StatusCode: resp.StatusCode,
			Msg: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, u)}
	}

	text, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &Error{Kind: ErrFetch, Code: code, URL: u, StatusCode: resp.StatusCode, Msg: "read body from " + u, Err: err}
	}
	if !LooksLikeCSV(text) {
		return "", &Error{Kind: errNonCSV, Code: code, URL: u, StatusCode: resp.StatusCode,
			Msg: "non-CSV response from " + u}
	}
	return text, nil
}

func selectError(code string, failures []*Error) error {
	if len(failures) == 0 {
		return &Error{Kind: ErrNoProviders, Code: code}
	}

	allNotFound, nonCSV := true, false
	for _, f := range failures {
		if !errors.Is(f, ErrNotFound) {
			allNotFound = false
		}
		if errors.Is(f, errNonCSV) {
			nonCSV = true
		}
	}

	switch {
	case allNotFound:
		return &Error{Kind: ErrNotFound, Code: code, Msg: fmt.Sprintf(
			"ETF %s: PCF data not found; the code may be invalid, not covered by the configured providers, or an ETN (which has no PCF)", code)}
	case nonCSV:
		return &Error{Kind: ErrNotPublished, Code: code, Msg: fmt.Sprintf(
			"ETF %s: no PCF data available right now; PCF files are published %s-%s JST on business days",
			code, utils.PCFWindowOpens, utils.PCFWindowCloses)}
	}

	for _, f := range failures {
		if !errors.Is(f, ErrNotFound) {
			return f
		}
	}
	return &Error{Kind: ErrFetch, Code: code, Msg: "all providers failed for ETF " + code}
}

// ExpandTemplate substitutes code into a provider URL template.
func ExpandTemplate(tmpl, code string) string {
	return strings.ReplaceAll(tmpl, config.CodePlaceholder, url.PathEscape(code))
}

// LooksLikeCSV reports whether a 200 body is a PCF rather than an HTML placeholder.
func LooksLikeCSV(text string) bool {
	trimmed := strings.TrimSpace(text)
	return !strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ",")
}
