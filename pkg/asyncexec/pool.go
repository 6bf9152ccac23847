// Package asyncexec provides the detached worker pool rings 7-9 dispatch
// onto (spec §4.3, §5). Unlike a retryable job queue, a dispatched task
// either runs to completion or is dropped; its errors never surface back to
// the caller that opened the pipeline invocation.
package asyncexec

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of fire-and-forget work handed to the pool by the pipeline
// after ring 5 commits. It receives the pool's own context (or
// context.Background() if the pool was never started), never the caller's
// request context (the caller may have already returned by the time the
// task runs).
type Task = func(ctx context.Context)

// Config controls pool sizing.
type Config struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Pool is a fixed-size goroutine worker pool for async ring dispatch.
type Pool struct {
	workers    int
	bufferSize int
	logger     *zap.Logger

	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New builds a pool. Call Start before Dispatch.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 8
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		tasks:      make(chan Task, cfg.BufferSize),
	}
}

// Start spins up the worker goroutines. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
}

// Stop cancels outstanding work and waits for workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

// Dispatch enqueues a task. If the pool's buffer is full the task runs on
// its own goroutine after a short wait rather than blocking the caller
// indefinitely — async rings must never back-pressure the synchronous
// phase that already committed (§5).
func (p *Pool) Dispatch(task Task) {
	p.mu.Lock()
	ctx := p.ctx
	started := p.started
	p.mu.Unlock()

	detached := func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Sugar().Errorw("async ring task panicked", "recover", r)
			}
		}()
		task(ctx)
	}

	if !started {
		go detached(context.Background())
		return
	}

	select {
	case p.tasks <- task:
	case <-time.After(50 * time.Millisecond):
		go detached(ctx)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Sugar().Errorw("async ring task panicked", "recover", r)
		}
	}()
	task(p.ctx)
}
