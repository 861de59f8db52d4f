// Package tasks runs background pipeline phases as tracked goroutines.
// Work outlives the request that started it, so each task gets its own
// error boundary and shutdown waits for stragglers instead of dropping
// them mid-write.
package tasks

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

type Runner struct {
	log *slog.Logger
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Go starts fn in the background. A panic inside fn is recovered and
// logged; it never takes down the process or its sibling tasks. Returns
// false when the runner is already shutting down.
func (r *Runner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("task rejected, runner shutting down", "task", name)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("background task panicked",
					"task", name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		// background ctx: the spawning request's context is already done
		fn(context.Background())
	}()
	return true
}

// Shutdown stops accepting tasks and waits for running ones, bounded by
// ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
