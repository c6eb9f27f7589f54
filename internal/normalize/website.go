// Package normalize turns raw classification payloads into the uniform
// enrichment record and provides the pure normalizers used for deduplication.
package normalize

import "strings"

// WebsiteIdentity canonicalizes a URL into the deduplication key for a
// company: strip protocol, leading "www.", trailing slash, query string and
// fragment, and lowercase the host. Path segments keep their case, since
// paths can be case-sensitive. Two inputs refer to the same site iff their
// outputs are byte-equal.
//
// Never errors: empty input yields "", unparsable input is trimmed
// best-effort so a malformed URL cannot block a directory entry.
func WebsiteIdentity(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}

	host, path, hasPath := strings.Cut(s, "/")
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if !hasPath {
		return host
	}
	return strings.TrimSuffix(host+"/"+path, "/")
}
