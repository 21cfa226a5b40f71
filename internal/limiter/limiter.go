// Package limiter caps the number of in-flight operations.
package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter admits at most limit concurrent tasks. Waiters are admitted in the
// order they arrived.
type Limiter struct {
	sem     *semaphore.Weighted
	limit   int
	running atomic.Int64
}

// New creates a Limiter. A limit below 1 is treated as 1.
func New(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the configured concurrency.
func (l *Limiter) Limit() int {
	return l.limit
}

// Running returns the number of tasks currently executing.
func (l *Limiter) Running() int {
	return int(l.running.Load())
}

// Run waits for a free slot and executes task. The slot is released when task
// returns or panics. Running tasks are never cancelled; ctx only bounds the
// wait for a slot.
func Run[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	l.running.Add(1)
	defer func() {
		l.running.Add(-1)
		l.sem.Release(1)
	}()

	return task(ctx)
}

// Do is Run for tasks without a result.
func (l *Limiter) Do(ctx context.Context, task func(ctx context.Context) error) error {
	_, err := Run(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	return err
}
