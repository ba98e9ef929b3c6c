package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crime-census/internal/resilience"
)

// defaultLimit applies to hosts without a configured limiter.
const defaultLimit = rate.Limit(20)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of attempts per request, including the first.
	MaxRetries int
	// Backoff is the delay before the second attempt; it doubles after that.
	Backoff      time.Duration
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher downloads over HTTP(S) with per-host rate limiting. Network
// failures and retryable statuses (408, 429, 5xx) are retried.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	retry    resilience.RetryConfig
	limiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns per-host limits for the public data sources.
// The Census API throttles keyed callers well above these.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"api.census.gov":   rate.NewLimiter(5, 5),
		"www2.census.gov":  rate.NewLimiter(2, 2),
		"data.seattle.gov": rate.NewLimiter(2, 2),
	}
}

// NewHTTPFetcher creates an HTTPFetcher. Limiters in opts.RateLimiters
// override the defaults for their host.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "crime-census/1.0"
	}

	limiters := DefaultRateLimiters()
	for host, lim := range opts.RateLimiters {
		limiters[host] = lim
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.MaxRetries,
			InitialBackoff: opts.Backoff,
			MaxBackoff:     30 * time.Second,
			Jitter:         0.25,
			OnRetry:        resilience.RetryLogger("fetcher.http", "download"),
		},
		limiters: limiters,
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if u, err := url.Parse(rawURL); err == nil {
		if lim, ok := f.limiters[u.Host]; ok {
			return lim
		}
	}
	return rate.NewLimiter(defaultLimit, int(defaultLimit))
}

// Download fetches rawURL and returns the body of a 200 response. Any other
// final status is a *StatusError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	lim := f.limiterFor(rawURL)

	resp, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: redact(req.URL)}
		}
		return resp, nil
	})
	if err != nil {
		zap.L().Debug("download failed", zap.String("url", redact(req.URL)), zap.Error(err))
		return nil, eris.Wrapf(err, "fetcher: get %s", redact(req.URL))
	}
	return resp.Body, nil
}

// DownloadToFile fetches rawURL into path. A failed transfer removes the
// partial file.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

// StatusError is a non-200 response that retries did not resolve.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPStatus lets resilience.IsTransient classify the failure.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// redact drops the query string so API keys never reach logs or errors.
func redact(u *url.URL) string {
	c := *u
	if c.RawQuery != "" {
		c.RawQuery = "redacted"
	}
	return c.String()
}

// writeFile copies r into a new file at path, removing it on failure.
func writeFile(path string, r io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
