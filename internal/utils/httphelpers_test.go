package utils

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCacheable(t *testing.T) {
	assert.True(t, IsCacheable(http.Header{"Cache-Control": {"public, max-age=300"}}))
	assert.True(t, IsCacheable(http.Header{"Expires": {"Wed, 21 Oct 2026 07:28:00 GMT"}}))
	assert.False(t, IsCacheable(http.Header{"Cache-Control": {"no-store"}}))
	assert.False(t, IsCacheable(http.Header{"Cache-Control": {"private"}}))
	assert.False(t, IsCacheable(http.Header{"Pragma": {"no-cache"}}))
	assert.False(t, IsCacheable(http.Header{}))
}

func TestBodyContains(t *testing.T) {
	body := []byte("Redirecting to HTTPS://EVIL.example/login")
	assert.True(t, BodyContains(body, []byte("evil.example")))
	assert.False(t, BodyContains(body, []byte("benign.example")))
	assert.False(t, BodyContains(nil, []byte("x")))
	assert.False(t, BodyContains(body, nil))
}

func TestHeadersContain(t *testing.T) {
	headers := http.Header{
		"Location":     {"https://Evil.Example/login"},
		"Content-Type": {"text/html"},
	}

	found, name := HeadersContain(headers, "evil.example")
	assert.True(t, found)
	assert.Equal(t, "Location", name)

	found, _ = HeadersContain(headers, "other.example")
	assert.False(t, found)

	found, _ = HeadersContain(headers, "")
	assert.False(t, found)
}

func TestIsSecurityRelevantHeader(t *testing.T) {
	assert.True(t, IsSecurityRelevantHeader("Location"))
	assert.True(t, IsSecurityRelevantHeader("location"))
	assert.True(t, IsSecurityRelevantHeader("Set-Cookie"))
	assert.False(t, IsSecurityRelevantHeader("Content-Length"))
}
