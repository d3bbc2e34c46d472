package proxy

import (
	"log/slog"
	"math/rand/v2"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/getgoodtape/videoproc/internal/config"
)

var defaultDecodoEndpoints = []string{
	"gate.decodo.com:10001",
	"gate.decodo.com:10002",
	"gate.decodo.com:10003",
	"gate.decodo.com:10004",
	"gate.decodo.com:10005",
	"gate.decodo.com:10006",
	"gate.decodo.com:10007",
	"gate.decodo.com:10008",
}

var placeholderValues = map[string]bool{
	"your_username": true,
	"your_password": true,
	"username":      true,
	"password":      true,
	"changeme":      true,
	"none":          true,
	"null":          true,
	"xxx":           true,
}

// Pool is the immutable set of configured endpoints.
type Pool struct {
	endpoints    []Endpoint
	byID         map[string]int
	stealthHosts []string
	priority     map[string]int
	shuffle      func(n int, swap func(i, j int))
}

// PoolOptions configures ordering behavior of a Pool.
type PoolOptions struct {
	StealthHosts   []string
	FamilyPriority []string
	// Shuffle defaults to math/rand/v2.Shuffle.
	Shuffle func(n int, swap func(i, j int))
}

// NewPool builds a pool from explicit endpoints. Duplicate IDs are collapsed,
// first one wins.
func NewPool(endpoints []Endpoint, opts PoolOptions) *Pool {
	p := &Pool{
		byID:     make(map[string]int, len(endpoints)),
		priority: make(map[string]int, len(opts.FamilyPriority)),
		shuffle:  opts.Shuffle,
	}
	if p.shuffle == nil {
		p.shuffle = rand.Shuffle
	}
	for _, h := range opts.StealthHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			p.stealthHosts = append(p.stealthHosts, h)
		}
	}
	for i, fam := range opts.FamilyPriority {
		fam = strings.ToLower(strings.TrimSpace(fam))
		if _, seen := p.priority[fam]; fam != "" && !seen {
			p.priority[fam] = i
		}
	}
	for _, ep := range endpoints {
		if _, dup := p.byID[ep.ID]; dup {
			continue
		}
		p.byID[ep.ID] = len(p.endpoints)
		p.endpoints = append(p.endpoints, ep)
	}
	return p
}

// LoadPool reads provider credentials from configuration. Incomplete or
// placeholder entries are dropped with a warning; it never fails.
func LoadPool(cfg config.ProxyConfig, logger *slog.Logger) *Pool {
	var eps []Endpoint

	if !cfg.Disabled {
		eps = append(eps, loadResidential(cfg, logger)...)

		if cfg.DatacenterURL != "" {
			ep, err := endpointFromURL(cfg.DatacenterURL, KindDatacenter, ProviderDatacenter)
			if err != nil {
				logger.Warn("ignoring datacenter proxy", "error", err)
			} else {
				eps = append(eps, ep)
			}
		}

		for _, raw := range cfg.FreeURLs {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			ep, err := endpointFromURL(raw, KindFree, ProviderFree)
			if err != nil {
				logger.Warn("ignoring free proxy", "url", raw, "error", err)
				continue
			}
			eps = append(eps, ep)
		}
	}

	if !cfg.DirectDisabled {
		eps = append(eps, DirectEndpoint())
	}

	pool := NewPool(eps, PoolOptions{
		StealthHosts:   cfg.StealthHosts,
		FamilyPriority: cfg.FamilyPriority,
	})

	logger.Info("proxy pool loaded",
		"endpoints", pool.Len(),
		"residential", len(pool.ofKind(KindResidential)),
		"datacenter", len(pool.ofKind(KindDatacenter)),
		"free", len(pool.ofKind(KindFree)),
		"direct", pool.Direct() != nil,
	)
	return pool
}

type residentialSource struct {
	provider  string
	user      string
	pass      string
	endpoints []string
}

func loadResidential(cfg config.ProxyConfig, logger *slog.Logger) []Endpoint {
	decodoEndpoints := cfg.DecodoEndpoints
	if len(decodoEndpoints) == 0 {
		decodoEndpoints = defaultDecodoEndpoints
	}

	brightUser := cfg.BrightDataUser
	if brightUser != "" && cfg.BrightDataZone != "" && !strings.Contains(brightUser, "-zone-") {
		brightUser += "-zone-" + cfg.BrightDataZone
	}

	sources := []residentialSource{
		{ProviderDecodo, cfg.DecodoUser, cfg.DecodoPass, decodoEndpoints},
		{ProviderSmartproxy, cfg.SmartproxyUser, cfg.SmartproxyPass, cfg.SmartproxyEndpoints},
		{ProviderBrightData, brightUser, cfg.BrightDataPass, []string{cfg.BrightDataEndpoint}},
		{ProviderOxylabs, cfg.OxylabsUser, cfg.OxylabsPass, []string{cfg.OxylabsEndpoint}},
	}

	var eps []Endpoint
	for _, src := range sources {
		if src.user == "" && src.pass == "" {
			continue
		}
		if isPlaceholder(src.user) || isPlaceholder(src.pass) {
			logger.Warn("ignoring proxy provider with missing or placeholder credentials", "provider", src.provider)
			continue
		}
		for _, hp := range src.endpoints {
			if strings.TrimSpace(hp) == "" {
				continue
			}
			host, port, err := parseHostPort(hp)
			if err != nil {
				logger.Warn("ignoring proxy endpoint", "provider", src.provider, "endpoint", hp, "error", err)
				continue
			}
			eps = append(eps, Endpoint{
				ID:              net.JoinHostPort(host, strconv.Itoa(port)),
				Kind:            KindResidential,
				Provider:        src.provider,
				Scheme:          "http",
				Host:            host,
				Port:            port,
				Credentials:     &Credentials{User: src.user, Pass: src.pass},
				SupportsSession: true,
				SupportsCountry: true,
			})
		}
	}
	return eps
}

func isPlaceholder(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || placeholderValues[s] || strings.HasPrefix(s, "your_")
}

// Len returns the number of endpoints, Direct included.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Endpoints returns a copy of all endpoints in configuration order.
func (p *Pool) Endpoints() []Endpoint {
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Get looks up an endpoint by ID.
func (p *Pool) Get(id string) (Endpoint, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Endpoint{}, false
	}
	return p.endpoints[i], true
}

// Direct returns the direct endpoint, or nil when disabled.
func (p *Pool) Direct() *Endpoint {
	if ep, ok := p.Get(DirectID); ok {
		return &ep
	}
	return nil
}

// FirstResidential returns the residential endpoint used as the representative
// for conflict probing, preferring the highest-priority family.
func (p *Pool) FirstResidential() *Endpoint {
	res := p.ofKind(KindResidential)
	if len(res) == 0 {
		return nil
	}
	best := res[0]
	for _, ep := range res[1:] {
		if p.familyRank(ep) < p.familyRank(best) {
			best = ep
		}
	}
	return &best
}

// HasProxies reports whether any non-direct endpoint is configured.
func (p *Pool) HasProxies() bool {
	for _, ep := range p.endpoints {
		if !ep.IsDirect() {
			return true
		}
	}
	return false
}

// IsStealthHost reports whether host (or a parent domain) is on the stealth list.
func (p *Pool) IsStealthHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	for _, s := range p.stealthHosts {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// List returns endpoints in try order.
//
// For ordinary hosts Direct leads when includeDirect is set and trails
// otherwise, followed by shuffled residential, datacenter and free endpoints.
// For stealth hosts the highest-priority residential family leads, the rest
// of residential follows, then datacenter and free, and Direct always trails.
func (p *Pool) List(includeDirect bool, preferredHost string) []Endpoint {
	residential := p.shuffled(p.ofKind(KindResidential))
	datacenter := p.ofKind(KindDatacenter)
	free := p.ofKind(KindFree)
	direct := p.Direct()

	out := make([]Endpoint, 0, len(p.endpoints))

	if !p.IsStealthHost(preferredHost) {
		if includeDirect && direct != nil {
			out = append(out, *direct)
		}
		out = append(out, residential...)
		out = append(out, datacenter...)
		out = append(out, free...)
		if !includeDirect && direct != nil {
			out = append(out, *direct)
		}
		return out
	}

	if len(residential) > 0 {
		top := residential[0]
		for _, ep := range residential[1:] {
			if p.familyRank(ep) < p.familyRank(top) {
				top = ep
			}
		}
		topFamily := top.Family()

		var lead, rest []Endpoint
		for _, ep := range residential {
			if ep.Family() == topFamily {
				lead = append(lead, ep)
			} else {
				rest = append(rest, ep)
			}
		}
		out = append(out, lead...)
		out = append(out, rest...)
	}
	out = append(out, datacenter...)
	out = append(out, free...)
	if direct != nil {
		out = append(out, *direct)
	}
	return out
}

// familyRank orders families: configured priority first, then unlisted
// IP-literal families, then unlisted DNS-named ones.
func (p *Pool) familyRank(ep Endpoint) int {
	if r, ok := p.priority[ep.Family()]; ok {
		return r
	}
	if ep.HostIsIP() {
		return len(p.priority)
	}
	return len(p.priority) + 1
}

func (p *Pool) ofKind(kind Kind) []Endpoint {
	var out []Endpoint
	for _, ep := range p.endpoints {
		if ep.Kind == kind {
			out = append(out, ep)
		}
	}
	return out
}

func (p *Pool) shuffled(eps []Endpoint) []Endpoint {
	out := make([]Endpoint, len(eps))
	copy(out, eps)
	p.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Families returns the residential families present, highest priority first.
func (p *Pool) Families() []string {
	seen := make(map[string]Endpoint)
	for _, ep := range p.ofKind(KindResidential) {
		if _, ok := seen[ep.Family()]; !ok {
			seen[ep.Family()] = ep
		}
	}
	out := make([]string, 0, len(seen))
	for fam := range seen {
		out = append(out, fam)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := p.familyRank(seen[out[i]]), p.familyRank(seen[out[j]])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
