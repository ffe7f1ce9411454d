package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// SessionCookieName is the cookie carrying the session token for browser clients
const SessionCookieName = "session_token"

// IPConfig holds configuration for client IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

func (c *IPConfig) prefixes() []netip.Prefix {
	if c == nil {
		return nil
	}
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, cidr := range c.TrustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ExtractClientIP returns the address used as the per-IP rate limit key.
// Forwarding headers are honoured only when the peer is a trusted proxy;
// otherwise the peer address from RemoteAddr wins. X-Forwarded-For is read
// from the right: trusted hops are skipped and the first untrusted address
// is the client. Entries left of it are client supplied and never used.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := remoteHost(r)
	trusted := config.prefixes()

	if !fromTrustedProxy(peer, trusted) {
		return peer
	}

	if ip := forwardedClient(r.Header.Values("X-Forwarded-For"), trusted); ip != "" {
		return ip
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return peer
}

// ExtractSessionToken reads the session token from the Authorization header
// ("Bearer <token>" or the bare token) or, failing that, the session cookie.
func ExtractSessionToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, rest, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
		if !found && !strings.EqualFold(header, "Bearer") {
			return header
		}
		return ""
	}

	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}

	return ""
}

// forwardedClient walks the X-Forwarded-For chain right to left. It stops at
// an unparsable entry; when every hop is trusted the leftmost one is returned.
func forwardedClient(headers []string, trusted []netip.Prefix) string {
	var hops []string
	for _, h := range headers {
		hops = append(hops, strings.Split(h, ",")...)
	}

	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(candidate); err != nil {
			break
		}
		if !fromTrustedProxy(candidate, trusted) {
			return candidate
		}
		last = candidate
	}
	return last
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func fromTrustedProxy(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
