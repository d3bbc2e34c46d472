package conflict

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS serves A records for gate.decodo.com and NXDOMAIN for everything else.
func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			if q.Name == "gate.decodo.com." && q.Qtype == dns.TypeA {
				rr, _ := dns.NewRR("gate.decodo.com. 60 IN A 149.88.96.10")
				m.Answer = append(m.Answer, rr)
			} else {
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSResolver_Resolve(t *testing.T) {
	addr := startDNS(t)
	r := NewDNSResolver(addr, 2*time.Second)

	addrs, err := r.Resolve(context.Background(), "gate.decodo.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"149.88.96.10"}, addrs)
}

func TestDNSResolver_NXDomain(t *testing.T) {
	addr := startDNS(t)
	r := NewDNSResolver(addr, 2*time.Second)

	_, err := r.Resolve(context.Background(), "missing.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestDNSResolver_IPLiteral(t *testing.T) {
	r := NewDNSResolver("127.0.0.1:1", time.Second)
	addrs, err := r.Resolve(context.Background(), "149.88.96.10")
	require.NoError(t, err)
	assert.Equal(t, []string{"149.88.96.10"}, addrs)
}

func TestNameservers(t *testing.T) {
	assert.Equal(t, []string{"1.1.1.1:53"}, nameservers("1.1.1.1"))
	assert.Equal(t, []string{"9.9.9.9:5353"}, nameservers("9.9.9.9:5353"))
	assert.NotEmpty(t, nameservers(""))
}
