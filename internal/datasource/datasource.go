// Package datasource fetches and parses the four upstream sources behind
// jpxetf: PCF constituent files, the JPX fee table, the JPX security
// master and the Rakuten market-data CSV.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// --- Error taxonomy ---

type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// ErrBase is the root of every error produced by this package.
var ErrBase = fmt.Errorf("jpxetf error")

var (
	// ErrNotFound: the code is unknown to every provider.
	ErrNotFound error = &kindError{"not found", ErrBase}
	// ErrFetch: network, HTTP or response-format failure.
	ErrFetch error = &kindError{"fetch failed", ErrBase}
	// ErrParse: malformed upstream data.
	ErrParse error = &kindError{"parse failed", ErrBase}

	// ErrNotPublished: a provider answered with a placeholder page instead of a PCF.
	ErrNotPublished error = &kindError{"no PCF data available right now", ErrFetch}
	// ErrNoProviders: no provider URL templates are configured.
	ErrNoProviders error = &kindError{"no provider URLs configured", ErrFetch}

	errNonCSV error = &kindError{"non-CSV response", ErrFetch}
)

// Error is a classified failure. Kind is one of the sentinel errors above;
// Err is the underlying cause, if any.
type Error struct {
	Kind       error
	Code       string
	URL        string
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func parseError(format string, args ...any) error {
	return &Error{Kind: ErrParse, Msg: fmt.Sprintf(format, args...)}
}

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPClient is the default client. Per-request deadlines come from the
// configured timeouts; this one is only a backstop.
var HTTPClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 64 << 20

// doGet performs a GET request with the given URL and headers, returning the response body.
// The caller is responsible for closing the returned ReadCloser.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	// Set default headers.
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "text/csv, text/html, application/vnd.ms-excel, */*")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	// Override/add custom headers.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = HTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp, nil
}

// getBytes downloads url within timeout and returns the raw body of a 2xx response.
func getBytes(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	body, _, err := doGet(ctx, client, url, nil)
	if err != nil {
		return nil, &Error{Kind: ErrFetch, URL: url, Msg: "request failed for " + url, Err: err}
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: ErrFetch, URL: url, Msg: "read body from " + url, Err: err}
	}
	return data, nil
}

// getText downloads url and decodes the body to UTF-8 using the declared or
// sniffed charset.
func getText(ctx context.Context, client *http.Client, url string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	body, resp, err := doGet(ctx, client, url, nil)
	if err != nil {
		return "", &Error{Kind: ErrFetch, URL: url, Msg: "request failed for " + url, Err: err}
	}
	defer body.Close()

	text, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &Error{Kind: ErrFetch, URL: url, Msg: "read body from " + url, Err: err}
	}
	return text, nil
}

// decodeBody reads r as text in the charset named by contentType, falling
// back to BOM and content sniffing.
func decodeBody(r io.Reader, contentType string) (string, error) {
	decoded, err := charset.NewReader(io.LimitReader(r, maxBodyBytes), contentType)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
