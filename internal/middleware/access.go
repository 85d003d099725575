package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Setting keys read by AccessControl.
const (
	KeyAllowedIPs = "allowed_ips"
	KeyAllowedDNS = "allowed_dns"
)

// SettingLookup is the read side of the settings store.
type SettingLookup interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// AccessConfig configures AccessControl.
type AccessConfig struct {
	// FailOpen admits requests when the allowlists cannot be read.
	FailOpen bool
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// LookupAddr resolves an IP to host names for the DNS allowlist.
	// Defaults to net.DefaultResolver.
	LookupAddr func(ctx context.Context, addr string) ([]string, error)
}

// AccessControl admits a request only when its client address matches the
// allowed_ips list (exact addresses or CIDR prefixes, comma separated) or its
// reverse DNS name matches allowed_dns. Both lists empty admits everything.
func AccessControl(settings SettingLookup, cfg AccessConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	lookupAddr := cfg.LookupAddr
	if lookupAddr == nil {
		lookupAddr = net.DefaultResolver.LookupAddr
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ips, dns, err := allowlists(ctx, settings)
			if err != nil {
				if cfg.FailOpen {
					logger.Warn("access control unavailable, allowing request", "error", err)
					next.ServeHTTP(w, r)
					return
				}
				logger.Error("access control unavailable, rejecting request", "error", err)
				writeError(w, http.StatusServiceUnavailable, "Access control unavailable")
				return
			}
			if len(ips) == 0 && len(dns) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			client := RemoteIP(r)
			if cfg.TrustProxy {
				client = RealIP(r)
			}
			if allowedIP(client, ips, logger) || allowedHost(ctx, client, dns, lookupAddr) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("access denied", "remote", client, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "Your IP address ("+client+") is not authorized to access this system.")
		})
	}
}

func allowlists(ctx context.Context, settings SettingLookup) (ips, dns []string, err error) {
	raw, _, err := settings.Lookup(ctx, KeyAllowedIPs)
	if err != nil {
		return nil, nil, err
	}
	ips = splitList(raw)
	raw, _, err = settings.Lookup(ctx, KeyAllowedDNS)
	if err != nil {
		return nil, nil, err
	}
	return ips, splitList(raw), nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func allowedIP(client string, allowed []string, logger *slog.Logger) bool {
	addr, err := netip.ParseAddr(client)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, a := range allowed {
		if strings.Contains(a, "/") {
			prefix, err := netip.ParsePrefix(a)
			if err != nil {
				logger.Warn("ignoring malformed allowed_ips entry", "entry", a)
				continue
			}
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if ip, err := netip.ParseAddr(a); err == nil && ip.Unmap() == addr {
			return true
		}
	}
	return false
}

func allowedHost(ctx context.Context, client string, allowed []string, lookup func(context.Context, string) ([]string, error)) bool {
	if len(allowed) == 0 {
		return false
	}
	names, err := lookup(ctx, client)
	if err != nil {
		return false
	}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSuffix(name, "."))
		for _, a := range allowed {
			a = strings.ToLower(a)
			if name == a || strings.HasSuffix(name, "."+a) {
				return true
			}
		}
	}
	return false
}
