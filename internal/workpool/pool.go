// Package workpool runs jobs on a fixed number of goroutines with
// non-blocking submission. The lifecycle engine keeps one pool for segment
// downloads and one for combine/trim tool runs so a long ffmpeg job never
// starves transfers.
package workpool

import (
	"context"
	"errors"
	"sync"
)

// Job is a unit of work. The context is canceled when the pool stops.
type Job func(ctx context.Context)

type Pool struct {
	name string
	size int

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan Job
	active  int
	stopped bool
	wg      sync.WaitGroup
}

func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{name: name, size: size}
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Size() int { return p.size }

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.jobs = make(chan Job, p.size)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return nil
}

// TryGo queues job when a slot is free. It never blocks; false means the
// caller should try again later.
func (p *Pool) TryGo(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil || p.stopped || p.active >= p.size {
		return false
	}
	p.active++
	p.jobs <- job
	return true
}

// Busy returns the number of queued or running jobs.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Stop cancels the pool context, lets queued jobs observe the cancellation,
// and waits for every worker to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel == nil || p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job(p.ctx)
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}
