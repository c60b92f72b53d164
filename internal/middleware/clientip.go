package middleware

import (
	"net"
	"net/http"
	"strings"
)

// forwardingHeaders are consulted in order when proxies are trusted.
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP returns a resolver for the caller's address. With trustProxy the
// first entry of the first non-empty forwarding header wins; otherwise only
// the connection address is used.
func ClientIP(trustProxy bool) func(*http.Request) string {
	return func(r *http.Request) string {
		if trustProxy {
			for _, h := range forwardingHeaders {
				if v := r.Header.Get(h); v != "" {
					if ip := firstHop(v); ip != "" {
						return ip
					}
				}
			}
		}
		return remoteHost(r.RemoteAddr)
	}
}

// firstHop extracts the first address of a comma-separated forwarding list,
// accepting both plain addresses and RFC 7239 "for=" elements.
func firstHop(v string) string {
	hop := strings.TrimSpace(strings.Split(v, ",")[0])
	for _, part := range strings.Split(hop, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
			hop = strings.Trim(part[4:], `"`)
			if host, _, err := net.SplitHostPort(hop); err == nil {
				return host
			}
			return strings.Trim(hop, "[]")
		}
	}
	return hop
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
