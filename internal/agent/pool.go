package agent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when every generation worker is occupied.
var ErrBusy = errors.New("all generation workers are busy, try again shortly")

// Pool bounds the number of concurrent agent runs.
type Pool struct {
	sem          *semaphore.Weighted
	size         int
	queueTimeout time.Duration
}

// NewPool creates a pool of size workers. A request waits at most
// queueTimeout for a free worker; zero means it does not wait.
func NewPool(size int, queueTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:          semaphore.NewWeighted(int64(size)),
		size:         size,
		queueTimeout: queueTimeout,
	}
}

// Acquire reserves a worker. The returned func releases it.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	release := func() { p.sem.Release(1) }

	if p.queueTimeout <= 0 {
		if !p.sem.TryAcquire(1) {
			return nil, ErrBusy
		}
		return release, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.queueTimeout)
	defer cancel()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
	return release, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}
