package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/utils"
)

// Confidence weights. Header-level cache confirmation is authoritative;
// latency inference only corroborates. Exact reflection outranks partial.
const (
	scoreCacheHeaderHit  = 0.50
	scoreCacheLatencyHit = 0.20
	scoreReflHeaderExact = 0.45
	scoreReflBodyExact   = 0.40
	scoreReflPartial     = 0.20
	scoreHeaderChanged   = 0.15
)

// CacheTester probes (endpoint, payload) pairs through a bounded worker pool
// and emits candidate findings.
type CacheTester struct {
	client *networking.Client
	cfg    *config.Config
	logger utils.Logger

	testsRun    atomic.Int64
	probeErrors atomic.Int64
}

// NewCacheTester creates a CacheTester.
func NewCacheTester(client *networking.Client, cfg *config.Config, logger utils.Logger) *CacheTester {
	return &CacheTester{client: client, cfg: cfg, logger: logger}
}

// TestsRun returns the number of (endpoint, payload) units executed so far.
func (t *CacheTester) TestsRun() int { return int(t.testsRun.Load()) }

// ProbeErrors returns the number of probes skipped due to network failures.
func (t *CacheTester) ProbeErrors() int { return int(t.probeErrors.Load()) }

type testUnit struct {
	endpoint Endpoint
	payload  Payload
}

// Test runs every (endpoint, payload) pair and returns the candidate
// findings. Findings may arrive in any order across workers; within one unit
// the baseline probe always precedes the poisoned probe. Cancelling ctx stops
// new units promptly and returns everything collected so far.
func (t *CacheTester) Test(ctx context.Context, endpoints []Endpoint, payloads []Payload, progress func(completed, total int)) []Finding {
	units := make([]testUnit, 0, len(endpoints)*len(payloads))
	for _, ep := range endpoints {
		for _, p := range payloads {
			units = append(units, testUnit{endpoint: ep, payload: p})
		}
	}

	// One limiter per worker: the delay paces each worker's own request
	// stream and never blocks its siblings.
	limiters := make([]*rate.Limiter, t.cfg.Threads)
	if t.cfg.DelaySeconds > 0 {
		for i := range limiters {
			limiters[i] = rate.NewLimiter(rate.Every(t.cfg.Delay()), 1)
		}
	}

	sink := &findingSink{}
	var completed atomic.Int64

	utils.ForEachIndex(ctx, t.cfg.Threads, len(units), func(ctx context.Context, worker, i int) {
		if ctx.Err() != nil {
			return
		}
		if lim := limiters[worker]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		if finding, ok := t.testOne(ctx, units[i]); ok {
			sink.add(finding)
			t.logger.Infof("Candidate finding: %s via %s: %s (confidence %.2f)",
				finding.Endpoint.URL, finding.Payload.HeaderName, finding.Payload.HeaderValue, finding.Confidence)
		}

		t.testsRun.Add(1)
		done := int(completed.Add(1))
		if progress != nil {
			progress(done, len(units))
		}
	})

	return sink.all()
}

// testOne runs the baseline-then-poisoned probe pair for a single unit and
// scores the comparison. Probe failures are tolerated: the unit is skipped
// and counted, never aborting the worker.
func (t *CacheTester) testOne(ctx context.Context, unit testUnit) (Finding, bool) {
	baseline, err := t.client.Probe(ctx, networking.ProbeRequest{
		URL: WithCacheBuster(unit.endpoint.URL),
	})
	if err != nil {
		t.probeErrors.Add(1)
		if t.cfg.Verbose {
			t.logger.Warnf("Baseline probe skipped for %s: %v", unit.endpoint.URL, err)
		}
		return Finding{}, false
	}

	poisoned, err := t.client.Probe(ctx, networking.ProbeRequest{
		URL:     WithCacheBuster(unit.endpoint.URL),
		Headers: http.Header{unit.payload.HeaderName: []string{unit.payload.HeaderValue}},
	})
	if err != nil {
		t.probeErrors.Add(1)
		if t.cfg.Verbose {
			t.logger.Warnf("Poisoned probe skipped for %s (%s): %v", unit.endpoint.URL, unit.payload.HeaderName, err)
		}
		return Finding{}, false
	}

	return t.evaluate(unit, baseline, poisoned)
}

// evaluate applies the detection heuristic: the poisoned response must show
// cache involvement AND carry the payload value (or a derived change) that
// the baseline does not.
func (t *CacheTester) evaluate(unit testUnit, baseline, poisoned *networking.ProbeResult) (Finding, bool) {
	value := unit.payload.HeaderValue

	// If the baseline already contains the value nothing is attributable to
	// the injected header.
	if utils.BodyContains(baseline.Body, []byte(value)) {
		return Finding{}, false
	}
	if found, _ := utils.HeadersContain(baseline.Headers, value); found {
		return Finding{}, false
	}

	cacheScore := 0.0
	cacheEvidence := ""
	switch {
	case poisoned.CacheStatus == networking.CacheHit:
		cacheScore = scoreCacheHeaderHit
		cacheEvidence = poisoned.CacheEvidence
	case poisoned.CacheStatus == networking.CacheUnknown &&
		utils.IsCacheable(poisoned.Headers) &&
		baseline.Elapsed > 0 && poisoned.Elapsed*2 < baseline.Elapsed:
		cacheScore = scoreCacheLatencyHit
		cacheEvidence = fmt.Sprintf("latency drop %s -> %s", baseline.Elapsed, poisoned.Elapsed)
	default:
		return Finding{}, false
	}

	kind, reflScore, reflEvidence := t.classifyReflection(unit, baseline, poisoned)
	if kind == ReflectionNone {
		return Finding{}, false
	}
	// The weak header-delta signal is only trusted on a header-confirmed hit.
	if kind == ReflectionHeaderChanged && cacheScore < scoreCacheHeaderHit {
		return Finding{}, false
	}

	confidence := cacheScore + reflScore
	if confidence < t.cfg.MinConfidence {
		return Finding{}, false
	}

	return Finding{
		Endpoint:   unit.endpoint,
		Payload:    unit.payload,
		Baseline:   baseline,
		Poisoned:   poisoned,
		Reflection: kind,
		Evidence:   strings.TrimSpace(cacheEvidence + "; " + reflEvidence),
		Confidence: confidence,
	}, true
}

// classifyReflection locates the payload value in the poisoned response,
// preferring exact matches over token-level ones, headers over body.
func (t *CacheTester) classifyReflection(unit testUnit, baseline, poisoned *networking.ProbeResult) (ReflectionKind, float64, string) {
	value := unit.payload.HeaderValue

	if found, name := utils.HeadersContain(poisoned.Headers, value); found {
		if poisoned.Headers.Get(name) != baseline.Headers.Get(name) {
			evidence := fmt.Sprintf("payload value reflected in response header %s: %s", name, poisoned.Headers.Get(name))
			if utils.IsSecurityRelevantHeader(name) {
				evidence += " (security-relevant header)"
			}
			return ReflectionHeaderExact, scoreReflHeaderExact, evidence
		}
	}

	if utils.BodyContains(poisoned.Body, []byte(value)) {
		return ReflectionBodyExact, scoreReflBodyExact, "payload value reflected in response body"
	}

	token := utils.ExtractRelevantToken(value)
	if token != "" && token != value {
		if found, name := utils.HeadersContain(poisoned.Headers, token); found {
			return ReflectionPartial, scoreReflPartial,
				fmt.Sprintf("payload token %q reflected in response header %s", token, name)
		}
		if utils.BodyContains(poisoned.Body, []byte(token)) {
			return ReflectionPartial, scoreReflPartial, fmt.Sprintf("payload token %q reflected in response body", token)
		}
	}
	if found, evidence := utils.TokenInResolvedHosts(poisoned.Body, token, unit.endpoint.URL); found {
		return ReflectionPartial, scoreReflPartial, evidence
	}

	// No direct reflection: fall back to a security-relevant header changing
	// under the payload, e.g. a redirect target flipping on a cached 302.
	for _, name := range utils.SecurityRelevantHeaders {
		b, p := baseline.Headers.Get(name), poisoned.Headers.Get(name)
		if p != "" && p != b {
			return ReflectionHeaderChanged, scoreHeaderChanged,
				fmt.Sprintf("response header %s changed under payload: %q -> %q", name, b, p)
		}
	}

	return ReflectionNone, 0, ""
}

// WithCacheBuster appends a unique cache-busting query parameter so the probe
// addresses a fresh cache key.
func WithCacheBuster(rawURL string) string {
	buster := "cb=" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + buster
	}
	return rawURL + "?" + buster
}
