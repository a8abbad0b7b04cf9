// Package fhirclient is a thin HTTP client for an external FHIR R4
// repository. It performs single-resource CRUD, searches, and transaction
// bundle submission. It never retries and never interprets response bodies
// beyond the status class: callers receive the repository's answer as-is.
package fhirclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
)

const (
	defaultTimeout = 10 * time.Second
	// Transaction bundles fan out into many repository writes; they get a
	// longer budget than single-resource calls.
	defaultBundleTimeout = 45 * time.Second

	maxErrorBody = 64 * 1024
)

// RepositoryError carries the repository's HTTP status and raw response
// body. The body is not parsed; diagnosing an OperationOutcome is the
// caller's (or the operator's) job.
type RepositoryError struct {
	Status int
	Body   string
}

func (e *RepositoryError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("repository returned %d: %s", e.Status, body)
}

// IsNotFound reports whether err is a repository 404.
func IsNotFound(err error) bool {
	re, ok := err.(*RepositoryError)
	return ok && re.Status == http.StatusNotFound
}

// IsStatus reports whether err is a RepositoryError with the given status.
func IsStatus(err error, status int) bool {
	re, ok := err.(*RepositoryError)
	return ok && re.Status == status
}

// HeaderSource supplies per-request headers: API keys, bearer tokens, or
// nothing. Implementations live in internal/platform/auth.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithHeaderSource sets the credential source for every request.
func WithHeaderSource(hs HeaderSource) Option {
	return func(cl *Client) { cl.headers = hs }
}

// WithTimeout sets the single-resource request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithBundleTimeout sets the transaction bundle timeout.
func WithBundleTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.bundleTimeout = d }
}

// Client talks to one FHIR repository base URL.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	headers       HeaderSource
	timeout       time.Duration
	bundleTimeout time.Duration
}

// New creates a Client for the given repository base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		timeout:       defaultTimeout,
		bundleTimeout: defaultBundleTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the repository base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Read fetches Type/id.
func (c *Client) Read(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/"+resourceType+"/"+url.PathEscape(id), nil, c.timeout)
}

// Search runs a search over the given type and decodes the searchset bundle.
func (c *Client) Search(ctx context.Context, resourceType string, query url.Values) (*fhir.Bundle, error) {
	u := c.baseURL + "/" + resourceType
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	raw, err := c.do(ctx, http.MethodGet, u, nil, c.timeout)
	if err != nil {
		return nil, err
	}
	var b fhir.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode search bundle: %w", err)
	}
	return &b, nil
}

// Create POSTs a new resource and returns the repository's copy.
func (c *Client) Create(ctx context.Context, resourceType string, resource interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+resourceType, resource, c.timeout)
}

// Update PUTs Type/id and returns the repository's copy.
func (c *Client) Update(ctx context.Context, resourceType, id string, resource interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, c.baseURL+"/"+resourceType+"/"+url.PathEscape(id), resource, c.timeout)
}

// Delete removes Type/id.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/"+resourceType+"/"+url.PathEscape(id), nil, c.timeout)
	return err
}

// SubmitBundle POSTs a transaction bundle to the repository root.
func (c *Client) SubmitBundle(ctx context.Context, bundle *fhir.Bundle) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.baseURL, bundle, c.bundleTimeout)
}

// Metadata fetches the repository capability statement; used by health
// checks with a short budget.
func (c *Client) Metadata(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/metadata", nil, 5*time.Second)
	return err
}

func (c *Client) do(ctx context.Context, method, u string, body interface{}, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/fhir+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	if c.headers != nil {
		hdrs, err := c.headers.Headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve credentials: %w", err)
		}
		for k, vals := range hdrs {
			for _, v := range vals {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RepositoryError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
