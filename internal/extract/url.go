package extract

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves href against base and standardizes the result: scheme
// and host are lowercased, default ports and fragments are dropped. Query
// parameter order is preserved so persisted URLs stay stable across runs.
// Placeholder hrefs ("", "#", "javascript:") resolve to "".
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", href, err)
	}
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url %q: %w", base, err)
		}
		ref = baseURL.ResolveReference(ref)
	}

	ref.Scheme = strings.ToLower(ref.Scheme)
	ref.Host = strings.ToLower(ref.Host)
	if ref.Scheme == "http" && strings.HasSuffix(ref.Host, ":80") {
		ref.Host = strings.TrimSuffix(ref.Host, ":80")
	}
	if ref.Scheme == "https" && strings.HasSuffix(ref.Host, ":443") {
		ref.Host = strings.TrimSuffix(ref.Host, ":443")
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}
