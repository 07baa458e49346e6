package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
)

type contextKeyPeer string

const peerAddrKey contextKeyPeer = "peer_addr"

// PeerAddr records the TCP peer address before any proxy header rewriting
// (chi's RealIP) so network restrictions cannot be bypassed with
// X-Forwarded-For. Mount it first.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParsePrefixes parses CIDR strings such as "127.0.0.0/8" or bare addresses.
func ParsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(c); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(c)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q", c)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// TrustedNetworks returns an HTTP middleware that rejects requests whose
// peer address is outside every prefix with 403.
func TrustedNetworks(prefixes []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !peerTrusted(r, prefixes) {
				WriteError(w, http.StatusForbidden, "untrusted_network",
					"This endpoint is only reachable from trusted networks")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(r *http.Request, prefixes []netip.Prefix) bool {
	addr, _ := r.Context().Value(peerAddrKey).(string)
	if addr == "" {
		addr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
