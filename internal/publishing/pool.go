package publishing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/metrics"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("publishing pool closed")

type task struct {
	name string
	fn   func(ctx context.Context)
}

// Pool runs background jobs on a fixed number of workers fed by a bounded queue.
type Pool struct {
	logg    *logger.Logger
	metrics *metrics.PublishMetrics
	tasks   chan task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. queueSize bounds pending jobs.
func NewPool(workers, queueSize int, logg *logger.Logger, m *metrics.PublishMetrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		logg:    logg,
		metrics: m,
		tasks:   make(chan task, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues fn without blocking. A full queue is a DEPENDENCY_ERROR.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task{name: name, fn: fn}:
		p.metrics.JobQueued()
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, "publishing queue is full")
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	ctx := context.Background()
	if p.logg != nil {
		ctx = p.logg.WithField(ctx, "task", t.name)
	}
	defer p.metrics.JobDone()
	defer func() {
		if r := recover(); r != nil && p.logg != nil {
			p.logg.Error(p.logg.WithField(ctx, "event", "pool.task_panic"), "background task panicked", fmt.Errorf("%v", r))
		}
	}()
	t.fn(ctx)
}
