// Package identity resolves the caller of an HTTP request.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/zerverless/jobmarket/internal/job"
)

const DefaultHeader = "X-Market-Identity"

type Provider interface {
	Identify(r *http.Request) (job.Identity, bool)
}

// HeaderProvider trusts a header set by a fronting gateway.
type HeaderProvider struct {
	Header string
}

func (p HeaderProvider) Identify(r *http.Request) (job.Identity, bool) {
	header := p.Header
	if header == "" {
		header = DefaultHeader
	}
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return "", false
	}
	return job.Identity(v), true
}

// TokenProvider maps bearer tokens to identities.
type TokenProvider struct {
	tokens map[string]string
}

func NewTokenProvider(tokens map[string]string) *TokenProvider {
	return &TokenProvider{tokens: tokens}
}

func (p *TokenProvider) Identify(r *http.Request) (job.Identity, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", false
	}
	id, ok := p.tokens[strings.TrimSpace(token)]
	if !ok || id == "" {
		return "", false
	}
	return job.Identity(id), true
}

// Chain asks each provider in order and returns the first identity found.
type Chain []Provider

func (c Chain) Identify(r *http.Request) (job.Identity, bool) {
	for _, p := range c {
		if id, ok := p.Identify(r); ok {
			return id, true
		}
	}
	return "", false
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id job.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (job.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(job.Identity)
	return id, ok && id != ""
}

// Middleware attaches the resolved identity, if any, to the request context.
// Routes that need a caller reject requests without one.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := p.Identify(r); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
