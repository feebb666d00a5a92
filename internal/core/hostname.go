package core

import (
	"regexp"
	"strings"
)

const maxHostnameLength = 253

var (
	hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?)*$`)
	labelPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?$`)
)

// NormalizeDomainName trims whitespace, strips a trailing port and root dot
// and lower-cases the result. IPv6 literals keep their address without brackets.
func NormalizeDomainName(host string) string {
	h := strings.TrimSpace(host)

	switch {
	case strings.HasPrefix(h, "["):
		// [::1] or [::1]:8080
		if end := strings.IndexByte(h, ']'); end > 0 {
			h = h[1:end]
		}
	case strings.Count(h, ":") == 1:
		if i := strings.IndexByte(h, ':'); isPort(h[i+1:]) {
			h = h[:i]
		}
	}

	h = strings.TrimSuffix(h, ".")
	return strings.ToLower(h)
}

// ValidHostname reports whether a normalized name is a syntactically valid
// DNS host name.
func ValidHostname(name string) bool {
	if name == "" || len(name) > maxHostnameLength {
		return false
	}
	return hostnamePattern.MatchString(name)
}

// ValidLabel reports whether s is a single valid DNS label.
func ValidLabel(s string) bool {
	return labelPattern.MatchString(s)
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
