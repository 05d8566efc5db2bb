package utils

import (
	"bytes"
	"net/http"
	"strings"
)

// IsCacheable makes a basic assessment of whether a response may be stored by
// a shared cache, from its headers alone. Real cache behavior is more complex;
// this is only used to prioritize evidence, never as a hard gate.
func IsCacheable(headers http.Header) bool {
	cacheControl := headers.Get("Cache-Control")
	if cacheControl != "" {
		if strings.Contains(cacheControl, "no-store") || strings.Contains(cacheControl, "private") {
			return false
		}
		if strings.Contains(cacheControl, "public") || strings.Contains(cacheControl, "max-age") {
			return true
		}
	}

	if strings.Contains(headers.Get("Pragma"), "no-cache") {
		return false
	}

	expires := headers.Get("Expires")
	if expires != "" && expires != "0" && expires != "-1" {
		return true
	}

	return false
}

// BodyContains reports whether the response body contains the needle,
// case-insensitively.
func BodyContains(body []byte, needle []byte) bool {
	if len(body) == 0 || len(needle) == 0 {
		return false
	}
	return bytes.Contains(bytes.ToLower(body), bytes.ToLower(needle))
}

// HeadersContain reports whether any response header value contains the
// needle, case-insensitively, and returns the first matching header name.
func HeadersContain(headers http.Header, needle string) (bool, string) {
	if needle == "" {
		return false, ""
	}
	lowered := strings.ToLower(needle)
	for name, values := range headers {
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), lowered) {
				return true, name
			}
		}
	}
	return false, ""
}

// SecurityRelevantHeaders are response headers whose attacker control is
// directly exploitable: a poisoned redirect or policy header affects every
// user served from the cache.
var SecurityRelevantHeaders = []string{
	"Location",
	"Content-Security-Policy",
	"Access-Control-Allow-Origin",
	"Set-Cookie",
	"Link",
	"Refresh",
}

// IsSecurityRelevantHeader reports whether name is one of the headers whose
// poisoning is treated as high severity.
func IsSecurityRelevantHeader(name string) bool {
	for _, h := range SecurityRelevantHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
