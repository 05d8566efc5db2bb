package networking

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cachefang/cachefang/internal/utils"
)

// maxBodyBytes caps how much of a response body is read. Reflection checks
// never need more and unbounded reads would let a single endpoint stall a
// worker.
const maxBodyBytes = 512 * 1024

// CacheStatus classifies whether a response was served by a shared cache.
type CacheStatus string

const (
	CacheHit     CacheStatus = "hit"
	CacheMiss    CacheStatus = "miss"
	CacheUnknown CacheStatus = "unknown"
)

// ProbeResult is the outcome of a single probe. It is ephemeral: produced per
// request and consumed immediately by the caller.
type ProbeResult struct {
	URL           string
	StatusCode    int
	Headers       http.Header
	Body          []byte
	Elapsed       time.Duration
	CacheStatus   CacheStatus
	CacheEvidence string
}

// BodySnippet returns the first part of the body for report evidence.
func (r *ProbeResult) BodySnippet() string {
	const snippetLen = 200
	if len(r.Body) <= snippetLen {
		return string(r.Body)
	}
	return string(r.Body[:snippetLen])
}

// cacheStatusHeaders are the response headers consulted, in order, to decide
// whether a response came out of a cache. Header-based signals are
// authoritative; latency inference is left to the caller as weak corroboration.
var cacheStatusHeaders = []string{
	"X-Cache",
	"X-Cache-Status",
	"CF-Cache-Status",
	"Cache-Status",
	"X-Proxy-Cache",
	"X-Drupal-Cache",
	"X-Vercel-Cache",
	"Fastly-Cache-Status",
}

// ClassifyCacheStatus inspects response headers for cache-indicating values
// and returns the classification plus the header that decided it.
func ClassifyCacheStatus(headers http.Header) (CacheStatus, string) {
	for _, name := range cacheStatusHeaders {
		value := headers.Get(name)
		if value == "" {
			continue
		}
		lower := strings.ToLower(value)
		if strings.Contains(lower, "hit") {
			return CacheHit, fmt.Sprintf("%s: %s", name, value)
		}
		if strings.Contains(lower, "miss") || strings.Contains(lower, "expired") || strings.Contains(lower, "bypass") {
			return CacheMiss, fmt.Sprintf("%s: %s", name, value)
		}
	}

	if age := headers.Get("Age"); age != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(age)); err == nil && n > 0 {
			return CacheHit, fmt.Sprintf("Age: %s", age)
		}
	}

	return CacheUnknown, ""
}

// ErrorKind distinguishes probe failure classes. All of them are non-fatal to
// the scan: callers count them and move on.
type ErrorKind int

const (
	ErrKindConnection ErrorKind = iota
	ErrKindTimeout
	ErrKindTLS
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTimeout:
		return "timeout"
	case ErrKindTLS:
		return "tls"
	default:
		return "connection"
	}
}

// ProbeError wraps a transport-level failure with its classification.
type ProbeError struct {
	URL  string
	Kind ErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ClassifyError wraps err in a ProbeError with the right kind.
func ClassifyError(url string, err error) *ProbeError {
	kind := ErrKindConnection

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrKindTimeout
	case isTLSError(err):
		kind = ErrKindTLS
	}

	return &ProbeError{URL: url, Kind: kind, Err: err}
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

// ClientConfig carries the network-level settings for a Client.
type ClientConfig struct {
	Timeout            time.Duration
	UserAgent          string
	Proxy              string
	InsecureSkipVerify bool
	MaxRedirects       int
}

// ProbeRequest describes a single probe to issue.
type ProbeRequest struct {
	URL     string
	Headers http.Header
	// FollowRedirects enables bounded redirect following. Poisoning probes
	// leave it off: the redirect status and Location must stay observable.
	FollowRedirects bool
}

// Client wraps net/http for probe traffic: fixed User-Agent, bounded
// redirects, optional proxy, and response classification.
type Client struct {
	noRedirect *http.Client
	redirect   *http.Client
	userAgent  string
	logger     utils.Logger
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg ClientConfig, logger utils.Logger) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	c := &Client{
		userAgent: cfg.UserAgent,
		logger:    logger,
	}

	c.noRedirect = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Return the redirect itself so its status and Location are observable.
			return http.ErrUseLastResponse
		},
	}
	c.redirect = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return c, nil
}

// Probe issues one GET request and returns the classified result. Transport
// failures come back as *ProbeError; they are never fatal to the caller.
func (c *Client) Probe(ctx context.Context, reqData ProbeRequest) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqData.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", reqData.URL, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	// Direct map assignment keeps the caller's header-name casing on the
	// wire; Header.Add would canonicalize it and defeat case-permutation
	// payloads.
	for name, values := range reqData.Headers {
		req.Header[name] = append(req.Header[name], values...)
	}

	httpClient := c.noRedirect
	if reqData.FollowRedirects {
		httpClient = c.redirect
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, ClassifyError(reqData.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	if err != nil {
		return nil, ClassifyError(reqData.URL, err)
	}

	status, evidence := ClassifyCacheStatus(resp.Header)

	if c.logger != nil {
		c.logger.Debugf("Probe %s -> %d in %s (cache: %s)", reqData.URL, resp.StatusCode, elapsed.Round(time.Millisecond), status)
	}

	return &ProbeResult{
		URL:           reqData.URL,
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		Elapsed:       elapsed,
		CacheStatus:   status,
		CacheEvidence: evidence,
	}, nil
}
