package core

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/utils"
)

// seedPaths are well-known endpoints included in discovery regardless of
// crawl results. Mirrors the path families most often fronted by a cache.
var seedPaths = []string{
	"/",
	"/api", "/api/v1", "/v1", "/v2",
	"/admin", "/portal", "/dashboard", "/console",
	"/graphql", "/wp-json", "/.well-known",
	"/actuator", "/metrics", "/health", "/status",
	"/api-docs", "/swagger", "/openapi",
	"/docs", "/help", "/debug",
	"/internal", "/private", "/public",
	"/auth", "/login", "/logout", "/user", "/account",
	"/management", "/monitor",
	"/search?q=", "/index", "/home",
	"/news", "/blog", "/contact", "/about",
	"/static", "/assets", "/upload", "/uploads", "/files",
	"/temp", "/cache",
}

// Discoverer builds the candidate endpoint set for a target: seed paths plus
// a bounded breadth-first crawl of links extracted from fetched HTML.
type Discoverer struct {
	client *networking.Client
	cfg    *config.Config
	logger utils.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(client *networking.Client, cfg *config.Config, logger utils.Logger) *Discoverer {
	return &Discoverer{client: client, cfg: cfg, logger: logger}
}

// discoveryState is the shared, locked state of one traversal.
type discoveryState struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	endpoints []Endpoint
	limit     int
}

// add records an endpoint if it is new and the budget allows. The normalized
// URL is the dedup key; first discovery wins.
func (st *discoveryState) add(ep Endpoint) bool {
	key, err := utils.NormalizeURL(ep.URL)
	if err != nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.seen[key]; exists {
		return false
	}
	if len(st.endpoints) >= st.limit {
		return false
	}
	st.seen[key] = struct{}{}
	st.endpoints = append(st.endpoints, ep)
	return true
}

func (st *discoveryState) full() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.endpoints) >= st.limit
}

// Discover runs the bounded BFS for one target and returns the deduplicated
// endpoint sequence. Hitting the URL budget is normal termination, never an
// error; fetch failures during crawling are tolerated and simply prune that
// branch.
func (d *Discoverer) Discover(ctx context.Context, target string, progress func(completed, total int)) ([]Endpoint, error) {
	base, err := url.Parse(target)
	if err != nil || base.Hostname() == "" {
		return nil, &ValidationError{Target: target, Err: err}
	}

	st := &discoveryState{
		seen:  make(map[string]struct{}),
		limit: d.cfg.MaxURLs,
	}

	var frontier []Endpoint
	for _, p := range seedPaths {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		seed := Endpoint{URL: base.ResolveReference(ref).String(), Source: SourceSeed, Depth: 0}
		if st.add(seed) {
			frontier = append(frontier, seed)
		}
	}
	d.logger.Debugf("Seeded %d endpoints for %s", len(frontier), target)

	var limiter *rate.Limiter
	if d.cfg.DelaySeconds > 0 {
		// Approximates per-worker pacing for the small fetch pool.
		limiter = rate.NewLimiter(rate.Limit(float64(d.cfg.DiscoveryWorkers)/d.cfg.DelaySeconds), d.cfg.DiscoveryWorkers)
	}

	for depth := 0; depth < d.cfg.MaxDepth && len(frontier) > 0 && !st.full(); depth++ {
		var nextMu sync.Mutex
		var next []Endpoint
		fetched := 0

		utils.ForEachIndex(ctx, d.cfg.DiscoveryWorkers, len(frontier), func(ctx context.Context, _ int, i int) {
			if ctx.Err() != nil || st.full() {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}

			links := d.crawl(ctx, frontier[i].URL)
			for _, link := range links {
				ep := Endpoint{URL: link, Source: SourceCrawled, Depth: frontier[i].Depth + 1}
				if !d.inScope(base, link) {
					continue
				}
				if st.add(ep) {
					nextMu.Lock()
					next = append(next, ep)
					nextMu.Unlock()
				}
			}

			nextMu.Lock()
			fetched++
			done := fetched
			nextMu.Unlock()
			if progress != nil {
				progress(done, len(frontier))
			}
		})

		if ctx.Err() != nil {
			break
		}
		frontier = next
	}

	if st.full() {
		d.logger.Debugf("Discovery for %s stopped: %v", target, ErrDiscoveryLimit)
	}
	d.logger.Infof("Discovered %d unique endpoints for %s", len(st.endpoints), base.Hostname())
	return st.endpoints, nil
}

// crawl fetches one URL and extracts candidate links from its HTML. Non-HTML
// and failed responses yield nothing.
func (d *Discoverer) crawl(ctx context.Context, pageURL string) []string {
	res, err := d.client.Probe(ctx, networking.ProbeRequest{URL: pageURL, FollowRedirects: true})
	if err != nil {
		d.logger.Debugf("Crawl fetch failed for %s: %v", pageURL, err)
		return nil
	}
	if res.StatusCode != 200 {
		return nil
	}
	contentType := res.Headers.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	return utils.ExtractLinks(res.Body, base)
}

// inScope filters crawled links: http(s) only, same registrable domain as
// the target, no binary-asset extensions.
func (d *Discoverer) inScope(base *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !utils.SameScope(base.Hostname(), u.Hostname()) {
		return false
	}
	if utils.HasIgnoredExtension(link, utils.DefaultIgnoredExtensions) {
		return false
	}
	return true
}
