// Package images resolves planned image slots into URLs. Generation fans out
// over a bounded worker pool; every slot that cannot be generated resolves to
// a deterministic placeholder keyed by its role, so the page never ships with
// an empty slot.
package images

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("image pool is shut down")

// pool is a bounded goroutine pool for concurrent slot generation. Submission
// blocks when the pool is at capacity and respects context cancellation while
// waiting.
type pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func newPool(size int) *pool {
	if size <= 0 {
		size = 1
	}
	return &pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

func (p *pool) submit(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case p.sem <- struct{}{}:
		// Slot acquired.
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Re-check closed after acquiring the slot, in case shutdown raced.
	// wg.Add must happen under the lock or shutdown's wg.Wait can miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn(ctx)
	}()
	return nil
}

// wait blocks until all submitted work completes.
func (p *pool) wait() {
	p.wg.Wait()
}

// shutdown prevents new submissions and waits for active work to finish.
func (p *pool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}
