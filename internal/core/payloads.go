package core

import (
	"fmt"
	"strings"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/utils"
)

// headerFamily describes one unkeyed header to mutate and the values to try
// for it. Values may derive from the target host but never from randomness:
// the generated sequence must be identical across calls for the same
// (target, mode) so scans are reproducible.
type headerFamily struct {
	name     string
	category PayloadCategory
	values   func(host string) []string
}

func fixed(values ...string) func(string) []string {
	return func(string) []string { return values }
}

// standardFamilies is the core header set, derived from headers commonly
// stripped from cache keys by CDNs and reverse proxies.
var standardFamilies = []headerFamily{
	{"X-Forwarded-Host", CategoryHostHeader, func(host string) []string {
		return []string{
			"evil.example",
			host,
			host + ".evil.example",
			"canary." + host,
			"localhost",
			"127.0.0.1",
			host + ":1337",
			"attacker.example",
		}
	}},
	{"X-Original-Host", CategoryHostHeader, func(host string) []string {
		return []string{host, "evil.example", host + ".evil.example", "canary." + host}
	}},
	{"X-HTTP-Host-Override", CategoryHostHeader, func(host string) []string {
		return []string{host, "evil.example", "canary." + host, host + ":1337"}
	}},
	{"X-Forwarded-Scheme", CategoryForwardedProto, fixed("http", "https", "ws", "wss")},
	{"X-Forwarded-Proto", CategoryForwardedProto, fixed("http", "https", "ws", "wss")},
	{"X-Original-URL", CategoryPathOverride, fixed(
		"/admin", "/wp-admin", "/.env", "/api/internal", "/graphql", "/actuator", "/private", "/dashboard",
	)},
	{"X-Rewrite-URL", CategoryPathOverride, fixed("/admin", "/internal", "/api/private", "/console")},
	{"X-Override-URL", CategoryPathOverride, fixed("/admin", "/internal", "/private", "/debug")},
	{"X-Forwarded-For", CategoryCustom, fixed(
		"127.0.0.1", "192.168.0.1", "10.0.0.1", "172.16.0.1", "169.254.169.254", "10.13.37.1",
	)},
	{"X-Real-IP", CategoryCustom, fixed("127.0.0.1", "localhost", "192.168.0.1", "169.254.169.254", "10.0.0.1")},
	{"X-Client-IP", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "10.0.0.1")},
	{"Client-IP", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "10.0.0.1")},
	{"True-Client-IP", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "10.0.0.1")},
	{"X-Originating-IP", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "169.254.169.254")},
	{"X-Custom-IP-Authorization", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "10.0.0.1")},
	{"CF-Connecting-IP", CategoryCustom, fixed("127.0.0.1", "192.168.0.1", "169.254.169.254")},
	{"X-Cache-Control", CategoryCacheBuster, fixed("no-cache", "no-store", "max-age=0", "must-revalidate")},
}

// stealthFamilies is a small subset of the standard set: one value per
// header, minimizing request count and distinctiveness.
var stealthFamilies = []headerFamily{
	{"X-Forwarded-Host", CategoryHostHeader, fixed("evil.example")},
	{"X-Forwarded-Scheme", CategoryForwardedProto, fixed("http")},
	{"X-Original-URL", CategoryPathOverride, fixed("/admin")},
	{"X-Rewrite-URL", CategoryPathOverride, fixed("/admin")},
	{"X-Forwarded-For", CategoryCustom, fixed("127.0.0.1")},
	{"X-Real-IP", CategoryCustom, fixed("127.0.0.1")},
}

// aggressiveExtras are additional value variants layered on top of the
// standard set in aggressive mode.
var aggressiveExtras = []headerFamily{
	{"X-Forwarded-Host", CategoryHostHeader, func(host string) []string {
		return []string{host + ":8443", "evil.example," + host, "evil.example@" + host}
	}},
	{"X-Forwarded-For", CategoryCustom, fixed("127.0.0.1, 127.0.0.1", "0.0.0.0")},
	{"X-Original-URL", CategoryPathOverride, fixed("/api/v1/admin", "/..%2fadmin")},
}

// GeneratePayloads produces the ordered payload sequence for a target and
// mode. Deterministic: same inputs always yield the same sequence and count.
// Each payload is a single header mutation; host-override headers are never
// combined in one request, keeping findings attributable to one cause.
func GeneratePayloads(target string, mode config.Mode) ([]Payload, error) {
	if _, err := config.ParseMode(string(mode)); err != nil {
		return nil, &GenerationError{Err: err}
	}

	host, err := utils.GetDomainFromURL(target)
	if err != nil || host == "" {
		return nil, &GenerationError{Err: fmt.Errorf("cannot derive host from target %q: %v", target, err)}
	}

	var payloads []Payload
	expand := func(families []headerFamily, renameCase bool) {
		for _, fam := range families {
			for _, value := range fam.values(host) {
				payloads = append(payloads, Payload{
					HeaderName:  fam.name,
					HeaderValue: value,
					Category:    fam.category,
					Tier:        mode,
				})
			}
			if !renameCase {
				continue
			}
			// Case permutations slip past exact-match header filters on some
			// proxies. Only worth the extra volume for the override families.
			if fam.category == CategoryHostHeader || fam.category == CategoryPathOverride {
				for _, variant := range []string{strings.ToLower(fam.name), strings.ToUpper(fam.name)} {
					for _, value := range fam.values(host) {
						payloads = append(payloads, Payload{
							HeaderName:  variant,
							HeaderValue: value,
							Category:    fam.category,
							Tier:        mode,
						})
					}
				}
			}
		}
	}

	switch mode {
	case config.ModeStealth:
		expand(stealthFamilies, false)
	case config.ModeAggressive:
		expand(standardFamilies, true)
		expand(aggressiveExtras, false)
	default:
		expand(standardFamilies, false)
	}

	return payloads, nil
}
