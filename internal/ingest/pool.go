package ingest

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

var ErrPoolClosed = errors.New("ingest pool closed")

// Pool bounds how many replays are parsed at once. Each parse holds one
// slot for its whole duration.
type Pool struct {
	slots chan struct{}

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	return &Pool{slots: make(chan struct{}, capacity)}
}

// Capacity returns the number of concurrent slots.
func (p *Pool) Capacity() int { return cap(p.slots) }

// Acquire blocks until a slot is free or ctx ends. The returned func
// releases the slot and must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.running.Add(1)
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.running.Done()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-p.slots
			p.running.Done()
		})
	}, nil
}

// Do runs fn while holding a slot.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Close rejects new work and waits for running work to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.running.Wait()
	return nil
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
