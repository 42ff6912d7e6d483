package app

import (
	"net/url"
	"strings"
)

// allowOrigins returns a CORS origin check for the configured entries. An
// entry is a full origin ("https://app.example.com"), a host, a subdomain
// wildcard ("*.example.com") or a port wildcard ("localhost:*").
func allowOrigins(entries []string) func(string) bool {
	return func(origin string) bool {
		host := originHost(origin)
		for _, e := range entries {
			if e == origin || matchHost(e, host) {
				return true
			}
		}
		return false
	}
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func matchHost(pattern, host string) bool {
	switch {
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
