// Package fetch provides the pacing outbound HTTP client shared by every
// provider adapter and the PDF acquisition path. Requests through one Client
// are spaced by a minimum delay, retried a bounded number of times, and
// surface rich ProviderError details on exhaustion.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const (
	// bodySnippetLimit bounds the response body captured into errors.
	bodySnippetLimit = 1024
	// maxBodySize bounds any downloaded payload (PDFs included).
	maxBodySize = 100 * 1024 * 1024

	defaultUserAgent = "ScholarGraph/1.0 (+https://github.com/scholartech/scholargraph) research-automation"
)

// Options configures a Client instance.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	MinSpacing time.Duration
	Transport  http.RoundTripper
}

// Client is a paced, retrying HTTP client. lastRequestAt is shared across
// concurrent callers and mutated only under mu.
type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	minSpacing time.Duration

	mu            sync.Mutex
	lastRequestAt time.Time

	log zerolog.Logger
}

// Request describes one outbound call.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	ContentType string
	Provider    scholar.Provider
}

// Result is a completed response: body, content type and the final URL after
// redirects (needed to resolve relative links on landing pages).
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
	FinalURL    string
}

// New creates a paced Client.
func New(opts Options) *Client {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		userAgent:  ua,
		timeout:    timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		minSpacing: opts.MinSpacing,
		log:        logging.GetLogger("fetch"),
	}
}

// pace sleeps until minSpacing has elapsed since the previous request, then
// records the post-sleep time as the new lastRequestAt.
func (c *Client) pace(ctx context.Context) error {
	if c.minSpacing <= 0 {
		return nil
	}
	c.mu.Lock()
	wait := c.minSpacing - time.Since(c.lastRequestAt)
	if wait <= 0 {
		c.lastRequestAt = time.Now()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.lastRequestAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Fetch issues the request with pacing, per-attempt timeout and bounded
// retries. Network errors and non-2xx responses are retried; the final
// failure carries the provider tag, status and a truncated body snippet.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		res, err := c.attempt(ctx, method, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.log.Warn().
			Str("url", req.URL).
			Str("provider", string(req.Provider)).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Request attempt failed")
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method string, req Request) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, &scholar.ProviderError{Provider: req.Provider, URL: req.URL, Err: err}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &scholar.ProviderError{Provider: req.Provider, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &scholar.ProviderError{Provider: req.Provider, URL: req.URL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &scholar.ProviderError{
			Provider:    req.Provider,
			HTTPStatus:  resp.StatusCode,
			URL:         req.URL,
			BodySnippet: snippet(payload),
		}
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Result{
		StatusCode:  resp.StatusCode,
		Body:        payload,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
	}, nil
}

// DoJSON fetches and decodes a JSON payload. A 2xx response whose body does
// not decode as JSON is an error, never silently accepted.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	res, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return &scholar.ProviderError{
			Provider:    req.Provider,
			HTTPStatus:  res.StatusCode,
			URL:         req.URL,
			BodySnippet: snippet(res.Body),
			Err:         err,
		}
	}
	return nil
}

// Download fetches raw bytes plus the reported content type.
func (c *Client) Download(ctx context.Context, req Request) (*Result, error) {
	return c.Fetch(ctx, req)
}

func snippet(body []byte) string {
	if len(body) > bodySnippetLimit {
		body = body[:bodySnippetLimit]
	}
	return strings.ToValidUTF8(string(body), "")
}

// ThrottledTransport enforces a request rate beneath the pacing layer. Used
// for the Scholar scraper where upstream tolerance is much lower than the
// JSON catalogs.
type ThrottledTransport struct {
	Limiter *rate.Limiter
	Base    http.RoundTripper
}

// RoundTrip waits for limiter clearance before delegating.
func (t ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
