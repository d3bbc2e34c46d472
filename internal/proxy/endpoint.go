// Package proxy holds the outbound network paths (direct and proxied), the
// per-endpoint outcome statistics, and the selection/attempt loop built on them.
package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Kind classifies an endpoint.
type Kind string

const (
	KindDirect      Kind = "direct"
	KindResidential Kind = "residential"
	KindDatacenter  Kind = "datacenter"
	KindFree        Kind = "free"
)

// Provider names.
const (
	ProviderDirect     = "direct"
	ProviderDecodo     = "decodo"
	ProviderSmartproxy = "smartproxy"
	ProviderBrightData = "brightdata"
	ProviderOxylabs    = "oxylabs"
	ProviderDatacenter = "datacenter"
	ProviderFree       = "free"
	ProviderGeneric    = "generic"
)

// DirectID is the ID of the direct (no proxy) endpoint.
const DirectID = "direct"

// Credentials authenticate against a proxy.
type Credentials struct {
	User string
	Pass string
}

// Endpoint is one outbound network path.
type Endpoint struct {
	ID              string       `json:"id"`
	Kind            Kind         `json:"kind"`
	Provider        string       `json:"provider"`
	Scheme          string       `json:"scheme,omitempty"`
	Host            string       `json:"host,omitempty"`
	Port            int          `json:"port,omitempty"`
	Credentials     *Credentials `json:"-"`
	SupportsSession bool         `json:"supports_session"`
	SupportsCountry bool         `json:"supports_country"`
}

// DirectEndpoint returns the no-proxy endpoint.
func DirectEndpoint() Endpoint {
	return Endpoint{ID: DirectID, Kind: KindDirect, Provider: ProviderDirect}
}

// IsDirect reports whether the endpoint bypasses proxies.
func (e Endpoint) IsDirect() bool {
	return e.Kind == KindDirect
}

// HostIsIP reports whether the endpoint host is an IP literal.
func (e Endpoint) HostIsIP() bool {
	return net.ParseIP(e.Host) != nil
}

// Family groups endpoints of one provider addressed the same way, e.g.
// "decodo-ip" for Decodo endpoints configured by IP literal.
func (e Endpoint) Family() string {
	if e.HostIsIP() {
		return e.Provider + "-ip"
	}
	return e.Provider
}

// URL renders the proxy URL with the given username replacing the base one.
func (e Endpoint) URL(user string) string {
	if e.IsDirect() {
		return ""
	}
	u := &url.URL{
		Scheme: e.Scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
	}
	if e.Credentials != nil {
		u.User = url.UserPassword(user, e.Credentials.Pass)
	}
	return u.String()
}

// PathAttempt is an endpoint materialized for a single try.
type PathAttempt struct {
	EndpointID    string `json:"endpoint_id"`
	SessionSuffix string `json:"session,omitempty"`
	Country       string `json:"country,omitempty"`
	ProxyURL      string `json:"-"`
	Kind          Kind   `json:"kind"`
	Provider      string `json:"provider"`
}

// IsDirect reports whether the attempt goes out without a proxy.
func (p PathAttempt) IsDirect() bool {
	return p.ProxyURL == ""
}

// Redacted returns the proxy URL with the password masked, for logs.
func (p PathAttempt) Redacted() string {
	if p.ProxyURL == "" {
		return DirectID
	}
	u, err := url.Parse(p.ProxyURL)
	if err != nil {
		return p.EndpointID
	}
	return u.Redacted()
}

// parseHostPort splits "host:port" into parts and validates the port.
func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", s)
	}
	return host, port, nil
}

// endpointFromURL parses a full proxy URL such as DATACENTER_PROXY_URL.
func endpointFromURL(raw string, kind Kind, provider string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, err
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return Endpoint{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("missing host")
	}
	port := defaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid port %q", p)
		}
	}

	ep := Endpoint{
		ID:       net.JoinHostPort(host, strconv.Itoa(port)),
		Kind:     kind,
		Provider: provider,
		Scheme:   u.Scheme,
		Host:     host,
		Port:     port,
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		ep.Credentials = &Credentials{User: u.User.Username(), Pass: pass}
	}
	return ep, nil
}

func defaultPort(scheme string) int {
	switch scheme {
	case "https":
		return 443
	case "socks5", "socks5h":
		return 1080
	default:
		return 80
	}
}
