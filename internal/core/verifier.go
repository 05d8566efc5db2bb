package core

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/utils"
)

// Verifier re-probes candidate findings to separate reproducible cache
// poisoning from transient cache state and load-balancer routing variance.
type Verifier struct {
	client *networking.Client
	cfg    *config.Config
	logger utils.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(client *networking.Client, cfg *config.Config, logger utils.Logger) *Verifier {
	return &Verifier{client: client, cfg: cfg, logger: logger}
}

// Verify replays the poisoned-probe protocol for a finding. Each attempt
// sends a cache-busting clean baseline first, so a previous attempt's
// poisoned entry is never mistaken for fresh reproduction, then the poisoned
// probe. A Vulnerability is emitted only when the reproducibility ratio meets
// the configured threshold; otherwise the finding is discarded as a likely
// false positive.
func (v *Verifier) Verify(ctx context.Context, finding Finding) (Vulnerability, bool) {
	attempts := v.cfg.VerifyAttempts
	var results []*networking.ProbeResult
	confirmed := 0
	executed := 0

	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if !sleepJitter(ctx) {
				break
			}
		}
		executed++

		baseline, err := v.client.Probe(ctx, networking.ProbeRequest{
			URL: WithCacheBuster(finding.Endpoint.URL),
		})
		if err != nil {
			v.logger.Debugf("Verification baseline failed for %s: %v", finding.Endpoint.URL, err)
			continue
		}

		poisoned, err := v.client.Probe(ctx, networking.ProbeRequest{
			URL:     WithCacheBuster(finding.Endpoint.URL),
			Headers: http.Header{finding.Payload.HeaderName: []string{finding.Payload.HeaderValue}},
		})
		if err != nil {
			v.logger.Debugf("Verification probe failed for %s: %v", finding.Endpoint.URL, err)
			continue
		}
		results = append(results, poisoned)

		if v.attemptConfirms(finding, baseline, poisoned) {
			confirmed++
		}
	}

	// Fewer than two executed attempts can never establish reproducibility.
	if executed < 2 {
		return Vulnerability{}, false
	}

	ratio := float64(confirmed) / float64(executed)
	if ratio < v.cfg.ReproducibilityThreshold {
		v.logger.Debugf("Discarding finding for %s (%s): reproduced %d/%d, below threshold %.2f",
			finding.Endpoint.URL, finding.Payload.HeaderName, confirmed, executed, v.cfg.ReproducibilityThreshold)
		return Vulnerability{}, false
	}

	vuln := Vulnerability{
		Finding:         finding,
		Attempts:        results,
		AttemptCount:    executed,
		ConfirmedCount:  confirmed,
		Reproducibility: ratio,
		Severity:        SeverityFor(finding.Reflection),
	}
	v.logger.Infof("CONFIRMED %s poisoning on %s via %s (reproduced %d/%d)",
		vuln.Severity, finding.Endpoint.URL, finding.Payload.HeaderName, confirmed, executed)
	return vuln, true
}

// attemptConfirms checks whether one verification attempt re-observes the
// finding's reflection. The attempt's own clean baseline must be free of the
// value, otherwise the cache is still serving a prior poisoned entry and the
// attempt proves nothing.
func (v *Verifier) attemptConfirms(finding Finding, baseline, poisoned *networking.ProbeResult) bool {
	value := finding.Payload.HeaderValue
	if utils.BodyContains(baseline.Body, []byte(value)) {
		return false
	}
	if found, _ := utils.HeadersContain(baseline.Headers, value); found {
		return false
	}

	switch finding.Reflection {
	case ReflectionBodyExact:
		return utils.BodyContains(poisoned.Body, []byte(value))
	case ReflectionHeaderExact:
		found, name := utils.HeadersContain(poisoned.Headers, value)
		return found && poisoned.Headers.Get(name) != baseline.Headers.Get(name)
	case ReflectionPartial:
		token := utils.ExtractRelevantToken(value)
		if found, _ := utils.HeadersContain(poisoned.Headers, token); found {
			return true
		}
		if utils.BodyContains(poisoned.Body, []byte(token)) {
			return true
		}
		found, _ := utils.TokenInResolvedHosts(poisoned.Body, token, finding.Endpoint.URL)
		return found
	case ReflectionHeaderChanged:
		for _, name := range utils.SecurityRelevantHeaders {
			b, p := baseline.Headers.Get(name), poisoned.Headers.Get(name)
			if p != "" && p != b {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SeverityFor maps the reflection class of a confirmed finding to severity.
// Full body injection is the worst case; control over a redirect or another
// security-relevant header follows; token-level reflection is partial; a bare
// cached header delta without exploitable reflection is low.
func SeverityFor(kind ReflectionKind) Severity {
	switch kind {
	case ReflectionBodyExact:
		return SeverityCritical
	case ReflectionHeaderExact:
		return SeverityHigh
	case ReflectionPartial:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// sleepJitter pauses 200-700ms between verification attempts. Returns false
// when the context is cancelled first.
func sleepJitter(ctx context.Context) bool {
	delay := time.Duration(200+rand.Intn(500)) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
