package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerverless/jobmarket/internal/job"
)

func TestHeaderProvider(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := HeaderProvider{}.Identify(req)
	assert.False(t, ok)

	req.Header.Set(DefaultHeader, " alice ")
	id, ok := HeaderProvider{}.Identify(req)
	assert.True(t, ok)
	assert.Equal(t, job.Identity("alice"), id)

	req.Header.Set("X-User", "bob")
	id, ok = HeaderProvider{Header: "X-User"}.Identify(req)
	assert.True(t, ok)
	assert.Equal(t, job.Identity("bob"), id)
}

func TestTokenProvider(t *testing.T) {
	p := NewTokenProvider(map[string]string{"s3cret": "carol"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := p.Identify(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer wrong")
	_, ok = p.Identify(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer s3cret")
	id, ok := p.Identify(req)
	assert.True(t, ok)
	assert.Equal(t, job.Identity("carol"), id)
}

func TestChainAndMiddleware(t *testing.T) {
	chain := Chain{NewTokenProvider(map[string]string{"t1": "carol"}), HeaderProvider{}}

	var seen job.Identity
	var found bool
	h := Middleware(chain)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, found = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t1")
	req.Header.Set(DefaultHeader, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, found)
	assert.Equal(t, job.Identity("carol"), seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultHeader, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, job.Identity("alice"), seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, found)
}
