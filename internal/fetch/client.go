package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/sbdl/internal/log"
	"github.com/nao1215/sbdl/internal/model"
)

const (
	// maxRedirects stops redirect loops while allowing normal redirects.
	maxRedirects = 10

	// maxBackoff caps the exponential retry delay.
	maxBackoff = 30 * time.Second
)

// Client performs paced, retried GET requests against the soundboard site.
// It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	transport   http.RoundTripper
	timeout     time.Duration
	headers     map[string]string
	cookie      string
	userAgent   string
	maxBodySize int64
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default transport, e.g. with a SOCKS5
// transport from the tor package.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithTimeout sets the per-request timeout, covering the body read.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithCookie sets a raw Cookie header value sent with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize limits how many bytes Fetch reads. Zero keeps the default.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithRateLimit paces requests to rps requests per second. Zero or a
// negative value disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetries sets how often Fetch repeats a retryable failure and the base
// delay between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client. Without options it connects directly, does not
// retry, and does not pace requests.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:     60 * time.Second,
		maxBodySize: model.MaxPageSize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	base := c.transport
	if base == nil {
		base = http.DefaultTransport
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	c.httpClient = &http.Client{
		Transport: &headerInjectingTransport{
			base:      base,
			cookie:    c.cookie,
			headers:   c.headers,
			userAgent: c.userAgent,
		},
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	c.logger.Debug("fetch client ready",
		"timeout", c.timeout,
		"retries", c.maxRetries,
		"headers", log.SanitizeHeaders(c.headers),
		"cookie", c.cookie,
	)

	return c
}

// Fetch downloads a page or manifest into memory. Retryable failures are
// repeated up to the configured retry count with exponential backoff.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(c.backoff, attempt-1, lastErr)
			c.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		page, err := c.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) (*model.Page, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	page := &model.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         body,
	}
	page.ComputeHash()

	c.logger.Debug("fetched", "url", page.URL, "status", page.StatusCode, "bytes", len(body))
	return page, nil
}

// Download streams the body at rawURL into w and returns the number of
// bytes written. It makes exactly one attempt; callers that write to files
// own the retry policy because they also own cleanup of partial output.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return 0, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return n, nil
}

// Get issues a paced GET request and returns the raw response regardless
// of status. The caller must close the body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if rawURL == "" {
		return nil, &FetchError{Err: ErrEmptyURL}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return resp, nil
}

// Backoff returns base * 2^attempt, capped at 30 seconds.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for range attempt {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// retryDelay prefers a server-provided Retry-After (in seconds) over the
// computed backoff.
func retryDelay(base time.Duration, attempt int, lastErr error) time.Duration {
	if fe, ok := lastErr.(*FetchError); ok && fe.retryAfter != "" { //nolint:errorlint // only direct FetchErrors carry Retry-After
		if secs, err := strconv.Atoi(fe.retryAfter); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxBackoff)
		}
	}
	return Backoff(base, attempt)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// headerInjectingTransport adds the configured headers, cookie and
// User-Agent to every request, including redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	cookie    string
	headers   map[string]string
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	return t.base.RoundTrip(clone)
}
