package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/ratelimit"
)

// RateLimit rejects clients that exceed the limiter's budget with a 429.
// Clients are keyed by clients.ClientIP; a nil resolver keys on RemoteAddr.
// Health and readiness probes are exempt.
func RateLimit(limiter *ratelimit.Limiter, clients *ClientResolver) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			client := clients.ClientIP(r)
			if !limiter.Allow(client) {
				logger.FromContext(r.Context()).Warn("rate limit exceeded",
					"client", client,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr, or RemoteAddr itself when it
// has no port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientResolver identifies callers behind reverse proxies. X-Forwarded-For
// is read only when the direct peer is a trusted proxy, and then the
// right-most hop that is not itself trusted is the client.
type ClientResolver struct {
	trusted []netip.Prefix
}

// NewClientResolver accepts proxy addresses as single IPs or CIDR ranges.
func NewClientResolver(trustedProxies []string) (*ClientResolver, error) {
	c := &ClientResolver{}
	for _, entry := range trustedProxies {
		prefix, err := ParseProxy(entry)
		if err != nil {
			return nil, err
		}
		c.trusted = append(c.trusted, prefix)
	}
	return c, nil
}

// ParseProxy parses one trusted proxy entry.
func ParseProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (c *ClientResolver) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if c == nil || len(c.trusted) == 0 || !c.isTrusted(peer) {
		return peer
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !c.isTrusted(hop) {
			break
		}
	}
	return client
}

func (c *ClientResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
