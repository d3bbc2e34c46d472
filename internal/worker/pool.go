package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs blocking work on a fixed number of goroutines.
type Pool struct {
	workers int
	tasks   chan *task
	logger  *slog.Logger
	busy    atomic.Int32

	startOnce sync.Once
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Config holds worker pool configuration.
type Config struct {
	Workers int
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers int `json:"workers"`
	Busy    int `json:"busy"`
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan *task),
		logger:  logger.With("component", "worker_pool"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", "workers", p.workers)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop cancels running work and waits for workers to exit.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Stats reports worker occupancy.
func (p *Pool) Stats() Stats {
	return Stats{Workers: p.workers, Busy: int(p.busy.Load())}
}

// Do runs fn on a worker and waits for it. It returns early with ctx.Err()
// if no worker picks fn up before ctx ends. fn's context is cancelled when
// either ctx ends or the pool stops.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
	return <-t.done
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case t := <-p.tasks:
			t.done <- p.run(logger, t)
		}
	}
}

func (p *Pool) run(logger *slog.Logger, t *task) (err error) {
	if err := t.ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.busy.Add(1)
	defer p.busy.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(ctx)
}
