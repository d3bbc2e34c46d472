// Package conflict detects local network interference (typically a VPN) that
// breaks authenticated proxy tunnels, and caches the verdict.
package conflict

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/getgoodtape/videoproc/internal/config"
)

// Reason explains a State.
type Reason string

const (
	ReasonClear    Reason = "clear"
	ReasonNoProxy  Reason = "no-proxy"
	ReasonDisabled Reason = "disabled"
	ReasonDNS      Reason = "dns"
	ReasonAuth     Reason = "auth"
	ReasonTunnel   Reason = "tunnel"
	ReasonError    Reason = "error"
)

// State is the cached conflict verdict.
type State struct {
	Detected      bool      `json:"detected"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Reason        Reason    `json:"reason,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	ExitIP        string    `json:"exit_ip,omitempty"`
	LatencyMS     int64     `json:"latency_ms,omitempty"`
}

// Target is the representative proxy probed by the detector. A zero Target
// means no proxy is configured.
type Target struct {
	Provider string
	Host     string
	ProxyURL string
}

// Detector probes Target and caches the result for RefreshInterval.
type Detector struct {
	cfg      config.ConflictConfig
	target   Target
	resolver Resolver
	clock    clock.Clock
	logger   *slog.Logger
	observe  func(State)

	group singleflight.Group

	mu          sync.Mutex
	state       State
	invalidated bool
	positives   int
}

// Option configures a Detector.
type Option func(*Detector)

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(d *Detector) { d.resolver = r }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithObserver registers a callback invoked after every refresh.
func WithObserver(fn func(State)) Option {
	return func(d *Detector) { d.observe = fn }
}

// NewDetector creates a detector for target.
func NewDetector(cfg config.ConflictConfig, target Target, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg,
		target: target,
		clock:  clock.New(),
		logger: logger.With("component", "conflict"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.resolver == nil {
		d.resolver = NewDNSResolver(cfg.DNSServer, cfg.DNSTimeout)
	}
	if d.cfg.Confirmations < 1 {
		d.cfg.Confirmations = 1
	}
	return d
}

// Target returns the probed target.
func (d *Detector) Target() Target {
	return d.target
}

// IsStale reports whether s is older than the refresh interval.
func (d *Detector) IsStale(s State, now time.Time) bool {
	if s.LastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(s.LastCheckedAt) >= d.cfg.RefreshInterval
}

// Snapshot returns the cached state without probing.
func (d *Detector) Snapshot() State {
	if !d.cfg.Enabled {
		return State{Reason: ReasonDisabled}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Current returns the cached state, re-probing when it is stale or was invalidated.
func (d *Detector) Current(ctx context.Context) State {
	if !d.cfg.Enabled {
		return State{Reason: ReasonDisabled}
	}

	d.mu.Lock()
	s := d.state
	stale := d.invalidated || d.IsStale(s, d.clock.Now())
	d.mu.Unlock()

	if !stale {
		return s
	}
	return d.Refresh(ctx)
}

// Refresh probes now and updates the cached state. Concurrent callers share
// one probe.
func (d *Detector) Refresh(ctx context.Context) State {
	if !d.cfg.Enabled {
		return State{Reason: ReasonDisabled}
	}
	v, _, _ := d.group.Do("probe", func() (any, error) {
		return d.apply(d.Probe(context.WithoutCancel(ctx))), nil
	})
	return v.(State)
}

// Invalidate forces the next Current call to re-probe.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.invalidated = true
	d.mu.Unlock()
}

func (d *Detector) apply(raw State) State {
	d.mu.Lock()
	prev := d.state
	d.invalidated = false

	if raw.Detected {
		d.positives++
		if d.positives >= d.cfg.Confirmations {
			d.state = raw
		} else {
			// Not confirmed yet: keep the previous verdict and re-probe on next use.
			next := prev
			next.LastCheckedAt = raw.LastCheckedAt
			d.state = next
			d.invalidated = true
		}
	} else {
		d.positives = 0
		d.state = raw
	}
	s := d.state
	d.mu.Unlock()

	if s.Detected != prev.Detected || prev.LastCheckedAt.IsZero() {
		if s.Detected {
			d.logger.Warn("proxy conflict detected",
				"reason", s.Reason, "provider", s.Provider, "detail", s.Detail)
		} else {
			d.logger.Info("proxy path clear", "reason", s.Reason, "exit_ip", s.ExitIP)
		}
	}
	if d.observe != nil {
		d.observe(s)
	}
	return s
}

// Probe runs one uncached check: resolve the proxy host, then fetch the probe
// URL through the proxy.
func (d *Detector) Probe(ctx context.Context) State {
	now := d.clock.Now()
	s := State{LastCheckedAt: now, Provider: d.target.Provider}

	if d.target.ProxyURL == "" {
		s.Reason = ReasonNoProxy
		return s
	}

	if _, err := d.resolver.Resolve(ctx, d.target.Host); err != nil {
		s.Detected = true
		s.Reason = ReasonDNS
		s.Detail = err.Error()
		return s
	}

	ip, latency, err := d.fetchThroughProxy(ctx)
	s.LatencyMS = latency.Milliseconds()
	if err != nil {
		s.Detected = true
		s.Reason = classifyProbeError(err)
		s.Detail = err.Error()
		return s
	}
	s.Reason = ReasonClear
	s.ExitIP = ip
	return s
}

// statusError is a non-200 probe response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("probe returned HTTP %d %s", e.code, http.StatusText(e.code))
}

func (d *Detector) fetchThroughProxy(ctx context.Context) (string, time.Duration, error) {
	proxyURL, err := url.Parse(d.target.ProxyURL)
	if err != nil {
		return "", 0, fmt.Errorf("parse proxy url: %w", err)
	}
	client := &http.Client{
		Timeout: d.cfg.ProbeTimeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.ProbeURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	start := d.clock.Now()
	resp, err := client.Do(req)
	latency := d.clock.Since(start)
	if err != nil {
		return "", latency, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return "", latency, &statusError{code: resp.StatusCode}
	}
	return gjson.GetBytes(body, "origin").String(), latency, nil
}

var status407 = regexp.MustCompile(`\b407\b`)

func classifyProbeError(err error) Reason {
	if se, ok := err.(*statusError); ok {
		if se.code == http.StatusProxyAuthRequired {
			return ReasonAuth
		}
		return ReasonError
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "proxy authentication required"),
		strings.Contains(msg, "proxy") && status407.MatchString(msg):
		return ReasonAuth
	case strings.Contains(msg, "tunnel"), strings.Contains(msg, "proxyconnect"):
		return ReasonTunnel
	default:
		return ReasonError
	}
}
