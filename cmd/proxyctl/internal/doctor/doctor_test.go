package doctor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

type fakeResolver struct {
	fail map[string]bool
}

func (r fakeResolver) Resolve(_ context.Context, host string) ([]string, error) {
	if r.fail[host] {
		return nil, conflict.ErrNoAddresses
	}
	return []string{"149.88.96.10"}, nil
}

func decodo(port int) proxy.Endpoint {
	return proxy.Endpoint{
		ID:          "gate.decodo.com:" + strconv.Itoa(port),
		Kind:        proxy.KindResidential,
		Provider:    proxy.ProviderDecodo,
		Scheme:      "http",
		Host:        "gate.decodo.com",
		Port:        port,
		Credentials: &proxy.Credentials{User: "u", Pass: "p"},
	}
}

func newDoctor(pool *proxy.Pool, opts Options) *Doctor {
	if opts.Resolver == nil {
		opts.Resolver = fakeResolver{}
	}
	if opts.Direct == nil {
		opts.Direct = func(context.Context) DirectResult { return DirectResult{OK: true, ExitIP: "203.0.113.9"} }
	}
	opts.Now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	cfg := config.ConflictConfig{ProbeURL: "https://httpbin.org/ip", ProbeTimeout: time.Second}
	return New(pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func clearProber(_ context.Context, t conflict.Target) conflict.State {
	return conflict.State{Reason: conflict.ReasonClear, Provider: t.Provider, ExitIP: "198.51.100.7"}
}

func TestDoctor_Healthy(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{decodo(10001), decodo(10002), proxy.DirectEndpoint()}, proxy.PoolOptions{})
	rep := newDoctor(pool, Options{Prober: clearProber}).Run(context.Background())

	assert.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), rep.CheckedAt)
	require.Len(t, rep.Endpoints, 2)
	assert.Equal(t, "gate.decodo.com:10001", rep.Endpoints[0].ID)
	assert.True(t, rep.Endpoints[0].OK())
	require.NotNil(t, rep.Direct)
	assert.True(t, rep.Direct.OK)
	assert.False(t, rep.Conflict)
	assert.Empty(t, rep.SplitTunnel)
	assert.Equal(t, []string{"Network configuration looks healthy."}, rep.Recommendations)

	hosts := make([]string, len(rep.DNS))
	for i, r := range rep.DNS {
		hosts[i] = r.Host
	}
	assert.Equal(t, []string{"gate.decodo.com", "httpbin.org"}, hosts)
}

func TestDoctor_VPNConflict(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{decodo(10001), proxy.DirectEndpoint()}, proxy.PoolOptions{})
	prober := func(_ context.Context, t conflict.Target) conflict.State {
		return conflict.State{Detected: true, Reason: conflict.ReasonTunnel, Provider: t.Provider, Detail: "proxyconnect tcp: EOF"}
	}
	rep := newDoctor(pool, Options{Prober: prober}).Run(context.Background())

	assert.True(t, rep.Conflict)
	assert.Contains(t, rep.SplitTunnel, "gate.decodo.com")
	assert.Contains(t, rep.SplitTunnel, "*.decodo.com")
	assert.Contains(t, rep.SplitTunnel, SplitTunnelCIDR)
	assert.Contains(t, rep.Recommendations[0], "VPN")
}

func TestDoctor_AuthWithoutDirectSuccess(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{decodo(10001), proxy.DirectEndpoint()}, proxy.PoolOptions{})
	prober := func(context.Context, conflict.Target) conflict.State {
		return conflict.State{Detected: true, Reason: conflict.ReasonAuth}
	}
	rep := newDoctor(pool, Options{
		Prober: prober,
		Direct: func(context.Context) DirectResult { return DirectResult{Error: "dial tcp: i/o timeout"} },
	}).Run(context.Background())

	assert.False(t, rep.Conflict)
	assert.Contains(t, rep.Recommendations, "Proxy authentication failed; check the provider username and password.")
	assert.Contains(t, rep.Recommendations, "Direct connection failed; check connectivity and firewall rules.")
}

func TestDoctor_DNSFailure(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{decodo(10001)}, proxy.PoolOptions{})
	rep := newDoctor(pool, Options{
		Prober:     clearProber,
		Resolver:   fakeResolver{fail: map[string]bool{"gate.decodo.com": true}},
		ExtraHosts: []string{"youtube.com"},
	}).Run(context.Background())

	require.Len(t, rep.DNS, 3)
	assert.False(t, rep.DNS[0].OK())
	assert.True(t, rep.DNS[2].OK())
	assert.Nil(t, rep.Direct)
	assert.Contains(t, rep.Recommendations[0], "did not resolve")
}

func TestDoctor_NoProxies(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{proxy.DirectEndpoint()}, proxy.PoolOptions{})
	called := false
	rep := newDoctor(pool, Options{Prober: func(context.Context, conflict.Target) conflict.State {
		called = true
		return conflict.State{}
	}}).Run(context.Background())

	assert.False(t, called)
	assert.Empty(t, rep.Endpoints)
	assert.Contains(t, rep.Recommendations, "No proxy endpoints are configured; only the direct path will be used.")
}

func TestDoctor_ProberSeesCredentials(t *testing.T) {
	pool := proxy.NewPool([]proxy.Endpoint{decodo(10001)}, proxy.PoolOptions{})
	var got conflict.Target
	newDoctor(pool, Options{Prober: func(_ context.Context, t conflict.Target) conflict.State {
		got = t
		return conflict.State{Reason: conflict.ReasonClear}
	}}).Run(context.Background())

	assert.Equal(t, "gate.decodo.com", got.Host)
	assert.Contains(t, got.ProxyURL, "gate.decodo.com:10001")
	assert.Contains(t, got.ProxyURL, ":p@")
}

func TestDNSResultOK(t *testing.T) {
	assert.True(t, DNSResult{Host: "a"}.OK())
	assert.False(t, DNSResult{Host: "a", Error: errors.New("x").Error()}.OK())
}
