// Package httpclient wraps go-resty with the platform's retry policy.
//
// Every verb is retried on transport-level failures (connection resets,
// timeouts, proxy and TLS certificate errors) and on 429 and 5xx responses.
// Other responses are returned as-is; call RaiseForStatus when a non-2xx
// response must fail.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/retry"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 60 * time.Second

// Client issues HTTP requests with retries.
type Client struct {
	rc *resty.Client

	// Retry is applied to every request. Retry.Retryable is overridden by IsTransient.
	Retry retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc as the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.rc = resty.NewWithClient(hc)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.rc.SetTimeout(d)
	}
}

// WithRetry replaces the retry policy.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) {
		c.Retry = p
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.rc.SetHeader("User-Agent", ua)
	}
}

// WithProxy routes requests through proxyURL. An empty URL keeps the
// environment's proxy settings.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL != "" {
			c.rc.SetProxy(proxyURL)
		}
	}
}

// New builds a Client. Options are applied in order, so WithHTTPClient
// should precede options that configure the underlying client.
func New(opts ...Option) *Client {
	c := &Client{
		rc:    resty.New(),
		Retry: retry.Default(),
	}
	c.rc.SetTimeout(DefaultTimeout)

	for _, o := range opts {
		o(c)
	}

	return c
}

// RequestOption configures a single request.
type RequestOption func(*resty.Request)

// Header sets a request header.
func Header(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

// Query sets a query parameter.
func Query(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}

// JSON marks the body as JSON.
func JSON() RequestOption {
	return Header("Content-Type", "application/json")
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, opts)
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodPost, url, body, opts)
}

// Put issues a PUT request with body.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodPut, url, body, opts)
}

// Patch issues a PATCH request with body.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodPatch, url, body, opts)
}

func (c *Client) do(ctx context.Context, method, url string, body any, opts []RequestOption) (*resty.Response, error) {
	p := c.Retry
	p.Retryable = IsTransient

	return retry.DoValue(ctx, p, func(ctx context.Context) (*resty.Response, error) {
		req := c.rc.R().SetContext(ctx)
		for _, o := range opts {
			o(req)
		}
		if body != nil {
			req.SetBody(body)
		}

		resp, err := req.Execute(method, url)
		if err != nil {
			return resp, xerrors.Errorf("failed to %s %s: %w", method, url, err)
		}

		if isRetryableStatus(resp.StatusCode()) {
			return resp, newStatusError(resp)
		}

		return resp, nil
	})
}
