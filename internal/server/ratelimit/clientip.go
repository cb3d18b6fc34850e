package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver picks the address a request is limited by. Forwarded headers
// are believed only when the socket peer is a trusted proxy. The zero value
// and a nil *IPResolver trust nobody.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver accepts plain IPs and CIDRs.
func NewIPResolver(proxies []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, p := range proxies {
		if ip := net.ParseIP(p); ip != nil {
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		r.trusted = append(r.trusted, n)
	}
	return r, nil
}

func (r *IPResolver) isTrusted(ip net.IP) bool {
	if r == nil || ip == nil {
		return false
	}
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer unless it is a trusted proxy. Then
// X-Forwarded-For is walked from the right and the first hop that is not a
// trusted proxy wins, falling back to X-Real-IP.
func (r *IPResolver) ClientIP(req *http.Request) string {
	peer := ClientIP(req)
	if !r.isTrusted(net.ParseIP(peer)) {
		return peer
	}

	if xff := req.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !r.isTrusted(ip) {
				return ip.String()
			}
		}
	}

	if ip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
