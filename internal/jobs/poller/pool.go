package poller

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Dispatcher hands a task to a worker. A nil error means a worker owns it.
type Dispatcher interface {
	Dispatch(task func()) error
}

// Pool runs at most workers tasks at once on an errgroup. Callers bound
// admission themselves, so Dispatch waits only for a worker that has
// already finished its task and is returning its slot.
type Pool struct {
	g      errgroup.Group
	mu     sync.RWMutex
	closed bool
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.g.SetLimit(workers)
	return p
}

func (p *Pool) Dispatch(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.g.Go(func() error {
		task()
		return nil
	})
	return nil
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.g.Wait()
}
