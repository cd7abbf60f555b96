// Package work provides the bounded worker pool that executes network I/O
// off the polling goroutine. Every in-flight job is tracked so the engine
// can cancel and await clean teardown before process exit.
package work

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/openretro/scraper/internal/logctx"
	"golang.org/x/sync/errgroup"
)

type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool with at most size concurrently running jobs.
func NewPool(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	group := &errgroup.Group{}
	group.SetLimit(size)

	return &Pool{ctx: ctx, cancel: cancel, group: group}
}

// TrySubmit schedules fn on a worker goroutine. It never blocks: when all
// workers are busy or the pool is shut down it returns false and the caller
// re-submits on a later poll tick. The job receives the pool context, which
// is cancelled on Close.
func (p *Pool) TrySubmit(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return false
	}

	return p.group.TryGo(func() error {
		defer func() {
			if r := recover(); r != nil {
				logctx.LoggerFromContext(p.ctx).Error("worker panic",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()

		fn(p.ctx)

		return nil
	})
}

// Close cancels all running jobs and waits for every worker to return, or
// for ctx to expire. Safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})

	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
