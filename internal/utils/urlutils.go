package utils

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultIgnoredExtensions lists binary and static-asset suffixes that are
// pointless to probe for cache poisoning: their responses never embed
// attacker-influenced markup and they bloat the endpoint set.
var DefaultIgnoredExtensions = []string{
	".js", ".css", ".map",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
	".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".tar", ".gz", ".rar",
	".mp4", ".avi", ".mov", ".webm", ".mp3", ".wav", ".ogg",
}

// NormalizeURL normalizes a URL for deduplication: scheme and host are
// lowercased, a leading "www." is stripped, the fragment is dropped, and
// query parameters (keys and values) are sorted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host
	u.Fragment = ""

	if u.RawQuery != "" {
		query := u.Query()
		sorted := make(url.Values)
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values := query[k]
			sort.Strings(values)
			for _, v := range values {
				sorted.Add(k, v)
			}
		}
		u.RawQuery = sorted.Encode()
	}

	return u.String(), nil
}

// EnsureScheme returns the target with an explicit scheme, defaulting to
// https when none is present. Any pre-existing scheme is preserved.
func EnsureScheme(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return target
	}
	if strings.Contains(target, "://") {
		return target
	}
	return "https://" + target
}

// SwapScheme rewrites an http URL to https and vice versa. Used for the
// https-then-http fallback during target validation.
func SwapScheme(rawURL string) string {
	if strings.HasPrefix(rawURL, "https://") {
		return "http://" + strings.TrimPrefix(rawURL, "https://")
	}
	if strings.HasPrefix(rawURL, "http://") {
		return "https://" + strings.TrimPrefix(rawURL, "http://")
	}
	return rawURL
}

// GetDomainFromURL extracts the hostname from a URL string.
func GetDomainFromURL(urlString string) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// RegistrableDomain returns the eTLD+1 of a hostname. IP addresses and hosts
// the public suffix list cannot resolve fall back to the hostname itself, so
// scope comparison still works for lab targets like 127.0.0.1 or bare names.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// SameScope reports whether two hostnames share a registrable domain. This is
// the crawl boundary: links resolving outside the target's eTLD+1 are dropped.
func SameScope(hostA, hostB string) bool {
	if hostA == "" || hostB == "" {
		return false
	}
	return RegistrableDomain(hostA) == RegistrableDomain(hostB)
}

// HasIgnoredExtension reports whether the URL path ends in one of the given
// (lowercase) suffixes.
func HasIgnoredExtension(rawURL string, ignored []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, ig := range ignored {
		if ext == ig {
			return true
		}
	}
	return false
}

// ExtractRelevantToken extracts a comparable token from an injected value.
// If the value parses as a URL with a hostname the hostname is returned,
// otherwise the value itself. Partial-reflection checks match on this token.
func ExtractRelevantToken(injectedValue string) string {
	if injectedValue == "" {
		return ""
	}
	u, err := url.Parse(injectedValue)
	if err == nil && u != nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return injectedValue
}
