package proxy

import (
	"log/slog"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
)

// Network bundles the process-wide path selection objects. Build it once at
// startup and pass it to whoever needs outbound paths.
type Network struct {
	Pool     *Pool
	Tracker  *Tracker
	Detector *conflict.Detector
	Selector *Selector
	Runner   *Runner
	Defaults config.ProxyConfig
}

// NetworkOptions carries optional collaborators.
type NetworkOptions struct {
	Observers       []AttemptObserver
	ConflictOptions []conflict.Option
	RunnerOptions   []RunnerOption
}

// NewNetwork wires pool, tracker, conflict detector, selector and runner.
func NewNetwork(pcfg config.ProxyConfig, ccfg config.ConflictConfig, logger *slog.Logger, opts NetworkOptions) *Network {
	pool := LoadPool(pcfg, logger)
	return NewNetworkFromPool(pool, pcfg, ccfg, logger, opts)
}

// NewNetworkFromPool is NewNetwork with an explicit pool.
func NewNetworkFromPool(pool *Pool, pcfg config.ProxyConfig, ccfg config.ConflictConfig, logger *slog.Logger, opts NetworkOptions) *Network {
	tracker := NewTracker()
	detector := conflict.NewDetector(ccfg, ConflictTarget(pool), logger, opts.ConflictOptions...)

	runnerOpts := []RunnerOption{
		WithAuthFailureHook(detector.Invalidate),
		WithObservers(opts.Observers...),
	}
	runnerOpts = append(runnerOpts, opts.RunnerOptions...)

	return &Network{
		Pool:     pool,
		Tracker:  tracker,
		Detector: detector,
		Selector: NewSelector(pool, tracker, detector, SelectorConfig{
			BestMinAttempts: pcfg.BestMinAttempts,
			BestPromote:     pcfg.BestPromote,
		}, logger),
		Runner:   NewRunner(tracker, logger, runnerOpts...),
		Defaults: pcfg,
	}
}

// ConflictTarget picks the representative residential endpoint to probe.
func ConflictTarget(pool *Pool) conflict.Target {
	ep := pool.FirstResidential()
	if ep == nil {
		return conflict.Target{}
	}
	attempt := Materialize(*ep, NewSessionSeed(), "")
	return conflict.Target{
		Provider: ep.Provider,
		Host:     ep.Host,
		ProxyURL: attempt.ProxyURL,
	}
}
