package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxyNets is the set of peers whose forwarding headers are honored.
type proxyNets []*net.IPNet

func parseProxyNets(entries []string) proxyNets {
	var nets proxyNets
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}
		// plain address shorthand for a /32 (or /128)
		ip := net.ParseIP(entry)
		if ip == nil {
			slog.Warn("ignoring invalid trusted proxy entry", "entry", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (p proxyNets) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP rewrites RemoteAddr from X-Real-IP or X-Forwarded-For when the
// connection peer is a configured proxy. Media tokens, record locks and
// the change log are all keyed by the remote address, so headers arriving
// from anything else are ignored and the connection address stands.
func RealIP(trustedProxies []string) func(http.Handler) http.Handler {
	proxies := parseProxyNets(trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proxies.contains(peerIP(r.RemoteAddr)) {
				if ip := forwardedClient(r); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient resolves the client address claimed by the proxy:
// X-Real-IP wins, otherwise the first hop of the X-Forwarded-For chain.
// Returns nil when neither header carries a parseable address.
func forwardedClient(r *http.Request) net.IP {
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return net.ParseIP(rip)
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return nil
	}
	first, _, _ := strings.Cut(xff, ",")
	return net.ParseIP(strings.TrimSpace(first))
}

// peerIP strips an optional port from the connection address.
func peerIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
