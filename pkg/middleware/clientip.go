package middleware

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// IPSet matches addresses against single IPs and CIDR ranges
type IPSet struct {
	ips  map[string]bool
	nets []*net.IPNet
}

// ParseIPSet parses entries, skipping blanks and logging invalid ones
func ParseIPSet(entries []string, logger *zap.Logger) *IPSet {
	s := &IPSet{ips: make(map[string]bool)}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			_, n, err := net.ParseCIDR(e)
			if err != nil {
				logger.Warn("Ignoring invalid CIDR", zap.String("entry", e))
				continue
			}
			s.nets = append(s.nets, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			logger.Warn("Ignoring invalid IP", zap.String("entry", e))
			continue
		}
		s.ips[ip.String()] = true
	}
	return s
}

// Empty reports whether no entry was parsed
func (s *IPSet) Empty() bool {
	return s == nil || (len(s.ips) == 0 && len(s.nets) == 0)
}

// Contains reports whether ip is listed
func (s *IPSet) Contains(ip string) bool {
	if s.Empty() {
		return false
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	if s.ips[parsed.String()] {
		return true
	}
	for _, n := range s.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// PeerIP is the address of the directly connected peer
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ProxyResolver finds the client address. X-Forwarded-For and X-Real-IP
// are only read when the direct peer is a trusted proxy.
// A nil resolver trusts no one.
type ProxyResolver struct {
	trusted *IPSet
}

// NewProxyResolver builds a resolver trusting the given proxy IPs and CIDRs
func NewProxyResolver(trustedProxies []string, logger *zap.Logger) *ProxyResolver {
	return &ProxyResolver{trusted: ParseIPSet(trustedProxies, logger)}
}

// ClientIP returns the caller address
func (p *ProxyResolver) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if p == nil || !p.trusted.Contains(peer) {
		return peer
	}

	// walk right to left; the first hop not added by our own proxies is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !p.trusted.Contains(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}
