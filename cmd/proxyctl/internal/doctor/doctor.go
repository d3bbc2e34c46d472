// Package doctor checks every configured network path from this host and
// explains what is wrong when a VPN or firewall interferes with the proxies.
package doctor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

// SplitTunnelCIDR is the Decodo gateway range that must bypass a VPN.
const SplitTunnelCIDR = "149.88.96.0/20"

// DNSResult is the resolution of one host.
type DNSResult struct {
	Host      string   `json:"host"`
	Addresses []string `json:"addresses,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// OK reports whether the host resolved.
func (r DNSResult) OK() bool { return r.Error == "" }

// DirectResult is the outcome of a request without any proxy.
type DirectResult struct {
	OK        bool   `json:"ok"`
	ExitIP    string `json:"exit_ip,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// EndpointResult is the probe of one proxy endpoint.
type EndpointResult struct {
	ID       string         `json:"id"`
	Kind     proxy.Kind     `json:"kind"`
	Provider string         `json:"provider"`
	State    conflict.State `json:"state"`
}

// OK reports whether the probe went through.
func (r EndpointResult) OK() bool { return !r.State.Detected }

// Report is the full doctor output.
type Report struct {
	CheckedAt       time.Time        `json:"checked_at"`
	DNS             []DNSResult      `json:"dns"`
	Direct          *DirectResult    `json:"direct,omitempty"`
	Endpoints       []EndpointResult `json:"endpoints"`
	Conflict        bool             `json:"conflict"`
	Recommendations []string         `json:"recommendations"`
	SplitTunnel     []string         `json:"split_tunnel,omitempty"`
}

// Prober probes one proxy target.
type Prober func(ctx context.Context, target conflict.Target) conflict.State

// Options tunes a Doctor. Zero values pick defaults.
type Options struct {
	Resolver    conflict.Resolver
	Prober      Prober
	Direct      func(ctx context.Context) DirectResult
	Concurrency int
	// ExtraHosts are resolved in addition to the proxy hosts.
	ExtraHosts []string
	Now        func() time.Time
}

// Doctor runs the checks.
type Doctor struct {
	pool   *proxy.Pool
	cfg    config.ConflictConfig
	opts   Options
	logger *slog.Logger
}

// New creates a doctor for every endpoint in pool.
func New(pool *proxy.Pool, cfg config.ConflictConfig, logger *slog.Logger, opts Options) *Doctor {
	d := &Doctor{pool: pool, cfg: cfg, opts: opts, logger: logger.With("component", "doctor")}
	if d.opts.Resolver == nil {
		d.opts.Resolver = conflict.NewDNSResolver(cfg.DNSServer, cfg.DNSTimeout)
	}
	if d.opts.Prober == nil {
		d.opts.Prober = d.detectorProbe
	}
	if d.opts.Direct == nil {
		d.opts.Direct = d.directProbe
	}
	if d.opts.Concurrency <= 0 {
		d.opts.Concurrency = 4
	}
	if d.opts.Now == nil {
		d.opts.Now = time.Now
	}
	return d
}

// Run executes all checks. It never fails; problems end up in the report.
func (d *Doctor) Run(ctx context.Context) *Report {
	rep := &Report{CheckedAt: d.opts.Now().UTC()}

	rep.DNS = d.checkDNS(ctx)

	if d.pool.Direct() != nil {
		direct := d.opts.Direct(ctx)
		rep.Direct = &direct
	}

	rep.Endpoints = d.probeEndpoints(ctx)
	rep.Conflict, rep.Recommendations = recommend(rep)
	if rep.Conflict {
		rep.SplitTunnel = splitTunnelRules(d.pool)
	}
	return rep
}

func (d *Doctor) hosts() []string {
	seen := map[string]bool{}
	var hosts []string
	for _, ep := range d.pool.Endpoints() {
		if ep.IsDirect() || ep.HostIsIP() || seen[ep.Host] {
			continue
		}
		seen[ep.Host] = true
		hosts = append(hosts, ep.Host)
	}
	if u, err := url.Parse(d.cfg.ProbeURL); err == nil && u.Hostname() != "" && !seen[u.Hostname()] {
		seen[u.Hostname()] = true
		hosts = append(hosts, u.Hostname())
	}
	for _, h := range d.opts.ExtraHosts {
		if !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func (d *Doctor) checkDNS(ctx context.Context) []DNSResult {
	hosts := d.hosts()
	out := make([]DNSResult, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, h := range hosts {
		g.Go(func() error {
			res := DNSResult{Host: h}
			addrs, err := d.opts.Resolver.Resolve(gctx, h)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Addresses = addrs
			}
			out[i] = res
			return nil
		})
	}
	g.Wait()
	return out
}

func (d *Doctor) probeEndpoints(ctx context.Context) []EndpointResult {
	var eps []proxy.Endpoint
	for _, ep := range d.pool.Endpoints() {
		if !ep.IsDirect() {
			eps = append(eps, ep)
		}
	}

	var mu sync.Mutex
	out := make([]EndpointResult, 0, len(eps))
	seed := proxy.NewSessionSeed()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, ep := range eps {
		g.Go(func() error {
			attempt := proxy.Materialize(ep, seed, "")
			st := d.opts.Prober(gctx, conflict.Target{
				Provider: ep.Provider,
				Host:     ep.Host,
				ProxyURL: attempt.ProxyURL,
			})
			d.logger.Debug("endpoint probed", "endpoint", ep.ID, "reason", st.Reason, "latency_ms", st.LatencyMS)
			mu.Lock()
			out = append(out, EndpointResult{ID: ep.ID, Kind: ep.Kind, Provider: ep.Provider, State: st})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Doctor) detectorProbe(ctx context.Context, target conflict.Target) conflict.State {
	cfg := d.cfg
	cfg.Confirmations = 1
	return conflict.NewDetector(cfg, target, d.logger, conflict.WithResolver(d.opts.Resolver)).Probe(ctx)
}

func (d *Doctor) directProbe(ctx context.Context) DirectResult {
	timeout := d.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: nil, DisableKeepAlives: true},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.ProbeURL, nil)
	if err != nil {
		return DirectResult{Error: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return DirectResult{LatencyMS: latency, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return DirectResult{LatencyMS: latency, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return DirectResult{OK: true, LatencyMS: latency, ExitIP: gjson.GetBytes(body, "origin").String()}
}

// recommend inspects the results. A conflict is reported when direct traffic
// works but proxies fail at DNS, auth or tunnel setup.
func recommend(rep *Report) (bool, []string) {
	var recs []string

	reasons := map[conflict.Reason]int{}
	okCount := 0
	for _, ep := range rep.Endpoints {
		if ep.OK() {
			okCount++
			continue
		}
		reasons[ep.State.Reason]++
	}
	interference := reasons[conflict.ReasonAuth] + reasons[conflict.ReasonTunnel] + reasons[conflict.ReasonDNS]
	directOK := rep.Direct != nil && rep.Direct.OK
	isConflict := interference > 0 && (directOK || rep.Direct == nil)

	if isConflict {
		recs = append(recs,
			"Proxy traffic is being intercepted, most likely by a VPN.",
			"Add the split-tunnel rules below to your VPN client's bypass list.",
			fmt.Sprintf("Make sure the proxy gateways and %s are routed directly.", SplitTunnelCIDR),
			"As a stopgap, pause the VPN or set NO_PROXY for the proxy gateway hosts.",
		)
	}
	if reasons[conflict.ReasonAuth] > 0 && !isConflict {
		recs = append(recs, "Proxy authentication failed; check the provider username and password.")
	}

	dnsFailed := slices.ContainsFunc(rep.DNS, func(r DNSResult) bool { return !r.OK() })
	if dnsFailed {
		recs = append(recs,
			"Some hosts did not resolve; check DNS settings or set CONFLICT_DNS_SERVER to a public resolver (1.1.1.1, 8.8.8.8).",
			"Make sure the VPN does not intercept DNS queries for proxy domains.",
		)
	}

	if rep.Direct != nil && !rep.Direct.OK {
		recs = append(recs, "Direct connection failed; check connectivity and firewall rules.")
	}

	if len(rep.Endpoints) == 0 {
		recs = append(recs, "No proxy endpoints are configured; only the direct path will be used.")
	} else if okCount == 0 && !isConflict && reasons[conflict.ReasonAuth] == 0 {
		recs = append(recs, "No proxy endpoint answered; check provider status and account balance.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Network configuration looks healthy.")
	}
	return isConflict, recs
}

// splitTunnelRules lists the destinations a VPN must send around the tunnel.
func splitTunnelRules(pool *proxy.Pool) []string {
	seen := map[string]bool{}
	var rules []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			rules = append(rules, s)
		}
	}
	for _, ep := range pool.Endpoints() {
		if ep.IsDirect() {
			continue
		}
		add(ep.Host)
		if ep.Provider == proxy.ProviderDecodo {
			add("*.decodo.com")
		}
	}
	add(SplitTunnelCIDR)
	for _, s := range []string{"1.1.1.1", "1.0.0.1", "8.8.8.8", "8.8.4.4", "httpbin.org", "api.ipify.org"} {
		add(s)
	}
	return rules
}
