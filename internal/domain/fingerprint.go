package domain

import (
	"net/url"
	"sort"
	"strings"
)

// RequestFingerprint is the normalized identity of an outbound request, used
// as the cache key. Two semantically identical requests always produce the
// same fingerprint: the method is upper-cased, the path lower-cased, and
// query parameters are sorted by key (values sorted within a key).
type RequestFingerprint string

// NewFingerprint normalizes (method, path, query) into a fingerprint of the
// form "METHOD /path?a=1&b=2". The query part is omitted when empty.
func NewFingerprint(method, path string, query url.Values) RequestFingerprint {
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(strings.TrimSpace(method)))
	sb.WriteByte(' ')
	sb.WriteString(strings.ToLower(strings.TrimSpace(path)))

	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('?')
		first := true
		for _, k := range keys {
			vals := append([]string(nil), query[k]...)
			sort.Strings(vals)
			for _, v := range vals {
				if !first {
					sb.WriteByte('&')
				}
				first = false
				sb.WriteString(url.QueryEscape(k))
				sb.WriteByte('=')
				sb.WriteString(url.QueryEscape(v))
			}
		}
	}

	return RequestFingerprint(sb.String())
}

// String returns the fingerprint as a plain cache key.
func (f RequestFingerprint) String() string { return string(f) }

// HasPrefix reports whether the fingerprint falls under the given key prefix,
// used for pattern invalidation.
func (f RequestFingerprint) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(f), prefix)
}
