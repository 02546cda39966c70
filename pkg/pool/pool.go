// Package pool provides the shared worker pool used to dispatch task waves.
package pool

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Future resolves to the boolean outcome of one submitted task.
type Future struct {
	done    chan struct{}
	success bool
	err     error
}

// Wait blocks until the task completed. A panic inside the task surfaces as
// (false, error).
func (f *Future) Wait() (bool, error) {
	<-f.done
	return f.success, f.err
}

// Pool wraps an ants goroutine pool with futures and a drain barrier. Its
// internal queue handles its own synchronization; callers may submit from
// the driver only.
type Pool struct {
	inner *ants.Pool
	wg    sync.WaitGroup
}

// NewPool creates a pool with the given worker capacity. Workers may block
// on I/O, so the pool is sized from configuration, not GOMAXPROCS.
func NewPool(capacity int) (*Pool, error) {
	inner, err := ants.NewPool(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Pool{inner: inner}, nil
}

// Submit schedules fn on the pool and returns its future.
func (p *Pool) Submit(fn func() bool) *Future {
	future := &Future{done: make(chan struct{})}

	p.wg.Add(1)

	err := p.inner.Submit(func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				future.success = false
				future.err = fmt.Errorf("task panicked: %v", recovered)
			}

			close(future.done)
			p.wg.Done()
		}()

		future.success = fn()
	})
	if err != nil {
		future.success = false
		future.err = fmt.Errorf("failed to submit task: %w", err)
		close(future.done)
		p.wg.Done()
	}

	return future
}

// WaitAll blocks until every submitted task has finished.
func (p *Pool) WaitAll() {
	p.wg.Wait()
}

// Release drains the pool and tears it down.
func (p *Pool) Release() {
	p.wg.Wait()
	p.inner.Release()
}
