// Package sideeffect runs fire-and-forget work (view counters, watch history,
// search indexing, event publishing) on a bounded worker pool so request
// handlers never wait on it.
package sideeffect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Skotchmaster/streamtweet/internal/metrics"
)

type Config struct {
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

type Dispatcher struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.SideEffectMetrics

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
}

func New(cfg Config, logger *slog.Logger, m *metrics.SideEffectMetrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(chan job, cfg.QueueSize),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Go enqueues fn without blocking. It reports false when the queue is full or
// the dispatcher is shutting down; the job is dropped in that case.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(name, "closed")
		return false
	}
	select {
	case d.jobs <- job{name: name, fn: fn}:
		d.metrics.SetDepth(len(d.jobs))
		return true
	default:
		d.drop(name, "queue_full")
		return false
	}
}

func (d *Dispatcher) drop(name, reason string) {
	d.logger.Warn("side_effect_dropped", "job", name, "reason", reason)
	d.metrics.Observe(name, "dropped")
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.metrics.SetDepth(len(d.jobs))
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := safeCall(ctx, j.fn)
	if err != nil {
		d.logger.Error("side_effect_failed", "job", j.name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		d.metrics.Observe(j.name, "error")
		return
	}
	d.metrics.Observe(j.name, "ok")
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
