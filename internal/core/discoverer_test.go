package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/utils"
)

func discovererConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxURLs = 100
	cfg.MaxDepth = 2
	cfg.DiscoveryWorkers = 3
	cfg.DelaySeconds = 0
	cfg.TimeoutSeconds = 5
	return cfg
}

func crawlableHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body>
		<a href="/products">Products</a>
		<a href="/products">Products again</a>
		<a href="/checkout?step=1">Checkout</a>
		<a href="https://other.example/away">External</a>
		<a href="/theme/style.css">Style</a>
		<img src="/theme/logo.png">
		<form action="/submit"><button formaction="/submit-alt"></button></form>
	</body></html>`)
}

func TestDiscovererSeedsAndCrawls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(crawlableHandler))
	defer srv.Close()

	d := NewDiscoverer(newTestClient(t), discovererConfig(), utils.NoOpLogger{})
	endpoints, err := d.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.NotEmpty(t, endpoints)

	byURL := make(map[string]Endpoint)
	for _, ep := range endpoints {
		byURL[ep.URL] = ep
	}

	root, ok := byURL[srv.URL+"/"]
	require.True(t, ok, "root seed must be present")
	assert.Equal(t, SourceSeed, root.Source)
	assert.Equal(t, 0, root.Depth)

	crawled, ok := byURL[srv.URL+"/products"]
	require.True(t, ok, "crawled link must be present")
	assert.Equal(t, SourceCrawled, crawled.Source)
	assert.Equal(t, 1, crawled.Depth)

	assert.Contains(t, byURL, srv.URL+"/checkout?step=1")
	assert.Contains(t, byURL, srv.URL+"/submit")
	assert.Contains(t, byURL, srv.URL+"/submit-alt")
}

func TestDiscovererDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(crawlableHandler))
	defer srv.Close()

	d := NewDiscoverer(newTestClient(t), discovererConfig(), utils.NoOpLogger{})
	endpoints, err := d.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for _, ep := range endpoints {
		key, err := utils.NormalizeURL(ep.URL)
		require.NoError(t, err)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate endpoint %s", ep.URL)
		seen[key] = struct{}{}
	}
}

func TestDiscovererFiltersScopeAndExtensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(crawlableHandler))
	defer srv.Close()

	d := NewDiscoverer(newTestClient(t), discovererConfig(), utils.NoOpLogger{})
	endpoints, err := d.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	for _, ep := range endpoints {
		assert.NotContains(t, ep.URL, "other.example", "out-of-scope link must be dropped")
		assert.False(t, strings.HasSuffix(ep.URL, ".css"), "asset link must be dropped: %s", ep.URL)
		assert.False(t, strings.HasSuffix(ep.URL, ".png"), "asset link must be dropped: %s", ep.URL)
	}
}

func TestDiscovererHonorsURLBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(crawlableHandler))
	defer srv.Close()

	cfg := discovererConfig()
	cfg.MaxURLs = 10

	d := NewDiscoverer(newTestClient(t), cfg, utils.NoOpLogger{})
	endpoints, err := d.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(endpoints), 10)
}

func TestDiscovererDepthZeroSkipsCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(crawlableHandler))
	defer srv.Close()

	cfg := discovererConfig()
	cfg.MaxDepth = 0

	d := NewDiscoverer(newTestClient(t), cfg, utils.NoOpLogger{})
	endpoints, err := d.Discover(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	for _, ep := range endpoints {
		assert.Equal(t, SourceSeed, ep.Source)
	}
}

func TestDiscovererBadTarget(t *testing.T) {
	d := NewDiscoverer(newTestClient(t), discovererConfig(), utils.NoOpLogger{})
	_, err := d.Discover(context.Background(), "://not-a-url", nil)
	require.Error(t, err)

	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}
