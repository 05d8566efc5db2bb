package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/utils"
)

func testerConfig(threads int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Threads = threads
	cfg.DelaySeconds = 0
	cfg.TimeoutSeconds = 5
	return cfg
}

func newTestClient(t *testing.T) *networking.Client {
	t.Helper()
	client, err := networking.NewClient(networking.ClientConfig{
		Timeout:   5 * time.Second,
		UserAgent: "test-agent",
	}, utils.NoOpLogger{})
	require.NoError(t, err)
	return client
}

// vulnerableHandler mimics a cache that keys only on the path: a request
// carrying X-Forwarded-Host gets that value reflected into Location and the
// response is marked as a cache hit.
func vulnerableHandler(w http.ResponseWriter, r *http.Request) {
	if xfh := r.Header.Get("X-Forwarded-Host"); xfh != "" {
		w.Header().Set("Location", "https://"+xfh+"/login")
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusFound)
		return
	}
	w.Header().Set("Location", "https://origin.internal/login")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusFound)
}

func TestCacheTesterDetectsHeaderReflection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(vulnerableHandler))
	defer srv.Close()

	tester := NewCacheTester(newTestClient(t), testerConfig(2), utils.NoOpLogger{})
	endpoints := []Endpoint{{URL: srv.URL, Source: SourceSeed}}
	payloads := []Payload{{
		HeaderName:  "X-Forwarded-Host",
		HeaderValue: "evil.example",
		Category:    CategoryHostHeader,
		Tier:        config.ModeStandard,
	}}

	findings := tester.Test(context.Background(), endpoints, payloads, nil)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, ReflectionHeaderExact, f.Reflection)
	assert.Equal(t, "X-Forwarded-Host", f.Payload.HeaderName)
	assert.GreaterOrEqual(t, f.Confidence, 0.9)
	assert.Contains(t, f.Evidence, "Location")
	require.NotNil(t, f.Poisoned)
	assert.Equal(t, networking.CacheHit, f.Poisoned.CacheStatus)
	assert.Equal(t, 1, tester.TestsRun())
}

func TestCacheTesterCleanTargetYieldsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-store")
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	payloads, err := GeneratePayloads(srv.URL, config.ModeStandard)
	require.NoError(t, err)
	require.Len(t, payloads, 73)

	tester := NewCacheTester(newTestClient(t), testerConfig(10), utils.NoOpLogger{})
	endpoints := []Endpoint{{URL: srv.URL, Source: SourceSeed}}

	findings := tester.Test(context.Background(), endpoints, payloads, nil)

	assert.Empty(t, findings)
	assert.Equal(t, 73, tester.TestsRun())
	assert.Equal(t, 0, tester.ProbeErrors())
}

func TestCacheTesterConcurrencyEquivalence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(vulnerableHandler))
	defer srv.Close()

	var endpoints []Endpoint
	for i := 0; i < 20; i++ {
		endpoints = append(endpoints, Endpoint{URL: fmt.Sprintf("%s/e%d", srv.URL, i), Source: SourceSeed})
	}
	payloads := []Payload{
		{HeaderName: "X-Forwarded-Host", HeaderValue: "evil.example", Category: CategoryHostHeader, Tier: config.ModeStandard},
		{HeaderName: "X-Real-IP", HeaderValue: "127.0.0.1", Category: CategoryCustom, Tier: config.ModeStandard},
	}

	key := func(f Finding) string {
		return f.Endpoint.URL + "|" + f.Payload.HeaderName
	}
	collect := func(threads int) []string {
		tester := NewCacheTester(newTestClient(t), testerConfig(threads), utils.NoOpLogger{})
		findings := tester.Test(context.Background(), endpoints, payloads, nil)
		keys := make([]string, 0, len(findings))
		for _, f := range findings {
			keys = append(keys, key(f))
		}
		sort.Strings(keys)
		return keys
	}

	serial := collect(1)
	parallel := collect(8)

	require.NotEmpty(t, serial)
	assert.Equal(t, serial, parallel, "finding set must not depend on worker count")
}

func TestCacheTesterCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(vulnerableHandler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tester := NewCacheTester(newTestClient(t), testerConfig(4), utils.NoOpLogger{})
	endpoints := []Endpoint{{URL: srv.URL, Source: SourceSeed}}
	payloads := []Payload{{HeaderName: "X-Forwarded-Host", HeaderValue: "evil.example", Category: CategoryHostHeader}}

	findings := tester.Test(ctx, endpoints, payloads, nil)
	assert.Empty(t, findings)
}

func TestCacheTesterProgressReachesTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	endpoints := []Endpoint{{URL: srv.URL + "/a"}, {URL: srv.URL + "/b"}}
	payloads := []Payload{
		{HeaderName: "X-Forwarded-Host", HeaderValue: "evil.example", Category: CategoryHostHeader},
		{HeaderName: "X-Real-IP", HeaderValue: "127.0.0.1", Category: CategoryCustom},
		{HeaderName: "X-Forwarded-Proto", HeaderValue: "http", Category: CategoryForwardedProto},
	}

	tester := NewCacheTester(newTestClient(t), testerConfig(3), utils.NoOpLogger{})
	var last atomic.Int64
	var totals atomic.Int64
	findings := tester.Test(context.Background(), endpoints, payloads, func(completed, total int) {
		if int64(completed) > last.Load() {
			last.Store(int64(completed))
		}
		totals.Store(int64(total))
	})

	assert.Empty(t, findings)
	assert.Equal(t, int64(6), last.Load())
	assert.Equal(t, int64(6), totals.Load())
}

func TestWithCacheBuster(t *testing.T) {
	plain := WithCacheBuster("https://example.com/page")
	assert.Contains(t, plain, "https://example.com/page?cb=")

	withQuery := WithCacheBuster("https://example.com/search?q=x")
	assert.Contains(t, withQuery, "https://example.com/search?q=x&cb=")

	assert.NotEqual(t, WithCacheBuster("https://example.com/"), WithCacheBuster("https://example.com/"),
		"each buster must address a fresh cache key")
}
