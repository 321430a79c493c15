// Package safefetch is the single choke point for outbound HTTP calls to
// operator-supplied URLs. Every sampler fetch passes through a Gate, which
// refuses to contact internal infrastructure (SSRF defense) before a single
// byte leaves the process.
package safefetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Block reasons returned by Validate.
const (
	ReasonInvalidURL       = "invalid_url"
	ReasonInvalidScheme    = "invalid_scheme"
	ReasonMissingHost      = "missing_host"
	ReasonLocalhostBlocked = "localhost_blocked"
	ReasonPrivateIPBlocked = "private_ip_blocked"
	ReasonDNSError         = "dns_error"
)

// DefaultTimeout bounds every gated request.
const DefaultTimeout = 15 * time.Second

// loopbackAliases are hostnames that resolve to loopback on common systems
// without looking like "localhost".
var loopbackAliases = map[string]struct{}{
	"localhost.localdomain": {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
}

// Observer is notified of gate outcomes. Implementations must be safe for
// concurrent use; reasons come from the Reason constants plus the transport
// reasons ("timeout", "connection_error", "read_error", "http_NNN").
type Observer interface {
	FetchBlocked(reason string)
	FetchFailed(reason string)
}

// Gate validates and performs outbound HTTP calls.
type Gate struct {
	client       *http.Client
	lookup       func(ctx context.Context, host string) ([]net.IPAddr, error)
	allowPrivate bool
	userAgent    string
	observer     Observer
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		g.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gate) {
		g.client = client
	}
}

// WithResolver overrides DNS resolution, used by tests to model rebinding.
func WithResolver(lookup func(ctx context.Context, host string) ([]net.IPAddr, error)) Option {
	return func(g *Gate) {
		g.lookup = lookup
	}
}

// WithAllowPrivate disables the private-address checks. Intended for local
// development against a chain node on the operator's own machine; never set
// it in production.
func WithAllowPrivate() Option {
	return func(g *Gate) {
		g.allowPrivate = true
	}
}

// WithObserver registers a sink for blocked and failed fetches.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// New creates a Gate with default timeout and the system resolver.
func New(opts ...Option) *Gate {
	g := &Gate{
		client: &http.Client{Timeout: DefaultTimeout},
		lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		},
		// Several public explorers reject the Go default agent outright.
		userAgent: "Mozilla/5.0 (compatible; chainpulse/1.0)",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate reports whether rawURL may be fetched. On rejection the second
// return value names the reason. The checks run in a fixed order: scheme,
// host presence, localhost aliases, literal IP classification, then DNS
// resolution of every answer (rebinding defense).
func (g *Gate) Validate(ctx context.Context, rawURL string) (bool, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, ReasonInvalidURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false, ReasonInvalidScheme
	}

	host := u.Hostname()
	if host == "" {
		return false, ReasonMissingHost
	}

	host = strings.ToLower(strings.Trim(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return false, ReasonLocalhostBlocked
	}
	if _, ok := loopbackAliases[host]; ok {
		return false, ReasonLocalhostBlocked
	}

	if ip := net.ParseIP(host); ip != nil {
		if !g.allowPrivate && isPrivateIP(ip) {
			return false, ReasonPrivateIPBlocked
		}
		return true, ""
	}

	addrs, err := g.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		return false, ReasonDNSError
	}
	if !g.allowPrivate {
		// One private answer poisons the whole name: an attacker-controlled
		// zone can interleave public and private records.
		for _, addr := range addrs {
			if isPrivateIP(addr.IP) {
				return false, ReasonPrivateIPBlocked
			}
		}
	}

	return true, ""
}

// isPrivateIP reports whether ip must not be contacted from this process.
func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		!ip.IsGlobalUnicast()
}

// FetchError is the typed failure returned by gated fetches.
type FetchError struct {
	Reason string // short machine-readable cause, e.g. "private_ip_blocked", "http_503"
	Detail string
}

func (e *FetchError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Fetch performs a validated GET and returns the raw body on 2xx.
func (g *Gate) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return g.do(ctx, http.MethodGet, rawURL, nil, "")
}

// Post performs a validated POST with a JSON body and returns the raw
// response body on 2xx.
func (g *Gate) Post(ctx context.Context, rawURL string, body []byte) ([]byte, error) {
	return g.do(ctx, http.MethodPost, rawURL, body, "application/json")
}
