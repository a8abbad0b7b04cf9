package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Tokens are refreshed this long before they actually expire so a
	// request never leaves with a token about to die in flight.
	expiryBuffer = 60 * time.Second

	// Used when the token endpoint reports no lifetime at all.
	defaultTokenLifetime = 5 * time.Minute
)

// TokenConfig describes an OAuth2 client-credentials grant.
type TokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) TokenSourceOption {
	return func(ts *TokenSource) { ts.now = now }
}

// WithTokenHTTPClient overrides the HTTP client used for the token endpoint.
func WithTokenHTTPClient(c *http.Client) TokenSourceOption {
	return func(ts *TokenSource) { ts.httpClient = c }
}

// TokenSource lazily fetches and caches a client-credentials access token.
// Refresh is single-flight: while one caller refreshes, the others wait on
// the same lock rather than racing the token endpoint.
type TokenSource struct {
	cfg        TokenConfig
	httpClient *http.Client
	now        func() time.Time

	mu       sync.Mutex
	token    string
	expires  time.Time
}

// NewTokenSource builds a TokenSource for the given grant.
func NewTokenSource(cfg TokenConfig, opts ...TokenSourceOption) *TokenSource {
	ts := &TokenSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(ts)
	}
	return ts
}

// Token returns the cached access token, refreshing it when it is within
// the expiry buffer. A stale token is never returned after its buffer has
// elapsed; refresh failures surface as errors.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expires.Add(-expiryBuffer)) {
		return ts.token, nil
	}

	if err := ts.refresh(ctx); err != nil {
		return "", err
	}
	return ts.token, nil
}

func (ts *TokenSource) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.cfg.ClientID)
	form.Set("client_secret", ts.cfg.ClientSecret)
	if ts.cfg.Scope != "" {
		form.Set("scope", ts.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token endpoint returned no access_token")
	}

	ts.token = payload.AccessToken
	ts.expires = ts.tokenExpiry(payload.AccessToken, payload.ExpiresIn)
	return nil
}

// tokenExpiry resolves the token lifetime: expires_in when present, else
// the JWT exp claim, else a short default.
func (ts *TokenSource) tokenExpiry(token string, expiresIn int) time.Time {
	if expiresIn > 0 {
		return ts.now().Add(time.Duration(expiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(token); ok {
		return exp
	}
	return ts.now().Add(defaultTokenLifetime)
}

// jwtExpiry extracts the exp claim without verifying the signature; the
// token is ours, only its lifetime is of interest here.
func jwtExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
