package auth

import (
	"context"
	"runtime"
	"sync"
)

// Pool runs CPU-bound jobs on a fixed number of goroutines, so a burst of
// logins queues instead of running every memory-hard hash at once.
type Pool struct {
	jobs      chan func()
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	size      int
}

// NewPool starts workers goroutines. workers <= 0 means one per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		size: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			job()
		}
	}
}

// Do runs fn on a worker and waits for it. If ctx ends first Do returns
// ctx.Err(); fn may still complete in the background and its results must
// then be ignored by the caller.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for running jobs until ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.quit) })

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
