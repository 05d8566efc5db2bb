package utils

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var linkAttributes = []string{"href", "src", "action", "formaction"}

// ExtractLinks parses an HTML document and returns all URLs referenced by
// href, src, action and formaction attributes, resolved against base.
// Unparseable attribute values are skipped.
func ExtractLinks(body []byte, base *url.URL) []string {
	if len(body) == 0 || base == nil {
		return nil
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if !isLinkAttribute(attr.Key) {
					continue
				}
				val := strings.TrimSpace(attr.Val)
				if val == "" || strings.HasPrefix(val, "#") {
					continue
				}
				ref, err := url.Parse(val)
				if err != nil {
					continue
				}
				links = append(links, base.ResolveReference(ref).String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

func isLinkAttribute(key string) bool {
	for _, a := range linkAttributes {
		if key == a {
			return true
		}
	}
	return false
}

// TokenInResolvedHosts looks for token inside the hostnames of URLs referenced
// by the document, where that hostname differs from the document's own host.
// This catches indirect poisoning: a forwarded-host value rewriting the links
// of a cached page rather than appearing verbatim in the body.
func TokenInResolvedHosts(body []byte, token string, pageURL string) (bool, string) {
	if len(body) == 0 || token == "" || pageURL == "" {
		return false, ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return false, ""
	}
	originalHost := base.Hostname()

	for _, link := range ExtractLinks(body, base) {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		host := u.Hostname()
		if host == "" || host == originalHost {
			continue
		}
		if strings.Contains(strings.ToLower(host), strings.ToLower(token)) {
			return true, fmt.Sprintf("link host %q resolves through injected token %q (page host %q)", host, token, originalHost)
		}
	}

	return false, ""
}
