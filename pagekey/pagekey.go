// Package pagekey derives the normalized page identifier that keys a page's
// highlight set. Two URLs that render the same document must normalize to the
// same key, or highlights stop re-attaching the moment a visit arrives with
// tracking decoration or a stray fragment.
package pagekey

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidURL is returned for input that cannot identify a page.
var ErrInvalidURL = fmt.Errorf("pagekey: invalid URL")

// trackingParams are query parameters that vary per visit without changing
// the document. They are stripped before keying.
var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"msclkid":  true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref":      true,
	"referrer": true,
}

// Normalize converts a raw page URL into its highlight-set key.
// Lowercases scheme and host, removes the fragment, strips tracking and
// utm_* query parameters, sorts the remaining parameters, and trims the
// trailing slash (except root). Non-http(s) schemes are rejected: highlights
// only attach to web pages.
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path != "/" {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if trackingParams[k] || strings.HasPrefix(k, "utm_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				if buf.Len() > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String(), nil
}
