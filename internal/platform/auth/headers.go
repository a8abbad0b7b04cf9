// Package auth supplies credentials for requests to FHIR repositories:
// static API keys for partner gateways and cached OAuth2 client-credentials
// tokens for repositories that require them.
package auth

import (
	"context"
	"net/http"
)

// None is a HeaderSource that adds nothing.
type None struct{}

func (None) Headers(context.Context) (http.Header, error) {
	return http.Header{}, nil
}

// APIKey sends a static key in the x-api-key header, the scheme partner
// organization gateways use.
type APIKey struct {
	Key string
}

func (a APIKey) Headers(context.Context) (http.Header, error) {
	h := http.Header{}
	if a.Key != "" {
		h.Set("x-api-key", a.Key)
	}
	return h, nil
}

// Bearer wraps a TokenSource and sends its token as an Authorization header.
type Bearer struct {
	Source *TokenSource
}

func (b Bearer) Headers(ctx context.Context) (http.Header, error) {
	tok, err := b.Source.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}
