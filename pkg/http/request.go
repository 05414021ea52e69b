package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the proxies whose forwarding headers are trusted
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	nets []*net.IPNet
}

// NewIPConfig parses the trusted proxy CIDRs up front so a typo fails at startup.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{TrustedProxies: trustedProxies}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		cfg.nets = append(cfg.nets, ipNet)
	}
	return cfg, nil
}

// ExtractClientIP resolves the address a request should be attributed to.
//
// Forwarding headers are honoured only when the socket peer is a trusted
// proxy. X-Forwarded-For is walked right to left and the first hop that is
// not itself a trusted proxy wins, so a client cannot prepend a fake address.
// X-Real-IP is the fallback, then RemoteAddr.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(hops[i])
			if !isValidIP(ip) {
				continue
			}
			if !config.isTrusted(ip) {
				return ip
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return xri
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func (c *IPConfig) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	nets := c.nets
	if nets == nil {
		// Built as a literal; parse lazily and skip invalid ranges
		for _, cidr := range c.TrustedProxies {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				nets = append(nets, ipNet)
			}
		}
	}

	for _, ipNet := range nets {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// DecodeJSON decodes a request body into dst, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("decode request body: %w", err)
		}
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
