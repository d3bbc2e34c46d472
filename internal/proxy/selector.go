package proxy

import (
	"context"
	"log/slog"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/domain"
)

// RequestContext carries per-request selection inputs.
type RequestContext struct {
	TargetHost  string
	AllowDirect bool
	MaxAttempts int
	Country     string
}

// ConflictSource supplies the current conflict verdict, refreshing it when stale.
type ConflictSource interface {
	Current(ctx context.Context) conflict.State
}

// SelectorConfig tunes promotion of historically good endpoints.
type SelectorConfig struct {
	BestMinAttempts int
	BestPromote     int
}

// Selector produces the ordered candidate list for a request.
type Selector struct {
	pool      *Pool
	tracker   *Tracker
	conflicts ConflictSource
	cfg       SelectorConfig
	seed      func() string
	logger    *slog.Logger
}

// NewSelector creates a selector. conflicts may be nil when detection is off.
func NewSelector(pool *Pool, tracker *Tracker, conflicts ConflictSource, cfg SelectorConfig, logger *slog.Logger) *Selector {
	if cfg.BestMinAttempts <= 0 {
		cfg.BestMinAttempts = 3
	}
	if cfg.BestPromote < 0 {
		cfg.BestPromote = 0
	}
	return &Selector{
		pool:      pool,
		tracker:   tracker,
		conflicts: conflicts,
		cfg:       cfg,
		seed:      NewSessionSeed,
		logger:    logger.With("component", "selector"),
	}
}

// Select returns at most req.MaxAttempts materialized attempts.
func (s *Selector) Select(ctx context.Context, req RequestContext) ([]PathAttempt, error) {
	if s.pool.Len() == 0 {
		return nil, domain.ErrNoNetworkPath
	}
	if !s.pool.HasProxies() {
		// Only Direct is configured.
		return []PathAttempt{Materialize(*s.pool.Direct(), "", "")}, nil
	}

	var state conflict.State
	if s.conflicts != nil {
		state = s.conflicts.Current(ctx)
	}

	var ordered []Endpoint
	stealth := false
	if state.Detected {
		ordered = s.conflictOrder(state.Provider)
		s.logger.Debug("conflict ordering", "reason", state.Reason, "provider", state.Provider)
	} else {
		ordered = s.pool.List(req.AllowDirect, req.TargetHost)
		stealth = s.pool.IsStealthHost(req.TargetHost)
	}

	ordered = s.promoteBest(ordered, stealth)

	if req.MaxAttempts > 0 && len(ordered) > req.MaxAttempts {
		ordered = ordered[:req.MaxAttempts]
	}

	attempts := make([]PathAttempt, len(ordered))
	for i, ep := range ordered {
		attempts[i] = Materialize(ep, s.seed(), req.Country)
	}
	return attempts, nil
}

// conflictOrder puts Direct first, then shuffled endpoints from providers
// other than the conflicted one, then the shuffled rest.
func (s *Selector) conflictOrder(conflicted string) []Endpoint {
	var clean, tainted []Endpoint
	for _, ep := range s.pool.Endpoints() {
		switch {
		case ep.IsDirect():
		case conflicted != "" && ep.Provider == conflicted:
			tainted = append(tainted, ep)
		default:
			clean = append(clean, ep)
		}
	}

	out := make([]Endpoint, 0, s.pool.Len())
	if d := s.pool.Direct(); d != nil {
		out = append(out, *d)
	}
	out = append(out, s.pool.shuffled(clean)...)
	out = append(out, s.pool.shuffled(tainted)...)
	return out
}

// promoteBest moves up to BestPromote of the tracker's best endpoints to the
// front, behind a leading Direct. Direct itself never moves. With withinKind
// set, an endpoint only moves to the front of its own kind's group, so a
// datacenter endpoint never overtakes residential ones.
func (s *Selector) promoteBest(ordered []Endpoint, withinKind bool) []Endpoint {
	if s.cfg.BestPromote == 0 || len(ordered) < 2 {
		return ordered
	}

	present := make(map[string]bool, len(ordered))
	for _, ep := range ordered {
		present[ep.ID] = true
	}

	var promote []string
	for _, id := range s.tracker.BestEndpoints(s.cfg.BestMinAttempts) {
		if id == DirectID || !present[id] {
			continue
		}
		promote = append(promote, id)
		if len(promote) == s.cfg.BestPromote {
			break
		}
	}
	if len(promote) == 0 {
		return ordered
	}

	promoted := make(map[string]bool, len(promote))
	for _, id := range promote {
		promoted[id] = true
	}

	if withinKind {
		return s.promoteWithinKind(ordered, promote, promoted)
	}

	out := make([]Endpoint, 0, len(ordered))
	start := 0
	if ordered[0].IsDirect() {
		out = append(out, ordered[0])
		start = 1
	}
	for _, id := range promote {
		ep, _ := s.pool.Get(id)
		out = append(out, ep)
	}
	for i, ep := range ordered {
		if i < start || promoted[ep.ID] {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// promoteWithinKind keeps the kind groups of ordered in place and lifts
// promoted endpoints to the head of their own group.
func (s *Selector) promoteWithinKind(ordered []Endpoint, promote []string, promoted map[string]bool) []Endpoint {
	var kinds []Kind
	groups := make(map[Kind][]Endpoint)
	for _, ep := range ordered {
		if _, ok := groups[ep.Kind]; !ok {
			kinds = append(kinds, ep.Kind)
		}
		if !promoted[ep.ID] {
			groups[ep.Kind] = append(groups[ep.Kind], ep)
		} else if groups[ep.Kind] == nil {
			groups[ep.Kind] = []Endpoint{}
		}
	}

	out := make([]Endpoint, 0, len(ordered))
	for _, k := range kinds {
		for _, id := range promote {
			if ep, _ := s.pool.Get(id); ep.Kind == k {
				out = append(out, ep)
			}
		}
		out = append(out, groups[k]...)
	}
	return out
}
