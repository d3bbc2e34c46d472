package conflict

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver resolves a proxy host name to addresses.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]string, error)
}

// ErrNoAddresses is returned when a name resolves to no A records.
var ErrNoAddresses = errors.New("no addresses found")

var fallbackNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DNSResolver queries nameservers directly so a VPN that hijacks the system
// resolver for proxy domains shows up as a failure.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver uses server when set ("1.1.1.1" or "1.1.1.1:53"), otherwise
// the nameservers from /etc/resolv.conf.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		servers: nameservers(server),
	}
}

func nameservers(server string) []string {
	if server = strings.TrimSpace(server); server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		return []string{server}
	}

	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cc.Servers) == 0 {
		return fallbackNameservers
	}
	out := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		out = append(out, net.JoinHostPort(s, cc.Port))
	}
	return out
}

// Servers returns the nameservers queried, in order.
func (r *DNSResolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// Resolve returns the IPv4 addresses of host. IP literals are returned as-is.
func (r *DNSResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf("query %s: %w", server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("query %s: %s", server, dns.RcodeToString[in.Rcode])
			continue
		}

		var addrs []string
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) == 0 {
			lastErr = fmt.Errorf("%s: %w", host, ErrNoAddresses)
			continue
		}
		return addrs, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w", host, ErrNoAddresses)
	}
	return nil, lastErr
}
