package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/andrej220/routerconfig/internal/lg"
)

const (
	DefaultWorkers  = 4
	TotalMaxWorkers = 64
)

var ErrPoolStopped = errors.New("worker pool is stopped")

type JobFunc[T any] func(context.Context, T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

// Pool runs jobs on a fixed number of workers.
type Pool[T any] struct {
	jobs          chan Job[T]
	activeWorkers int32
	wg            sync.WaitGroup
	mu            sync.RWMutex
	stopped       bool
	maxWorkers    int
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers
	}
	if maxWorkers > TotalMaxWorkers {
		maxWorkers = TotalMaxWorkers
	}
	p := &Pool[T]{
		jobs:       make(chan Job[T]),
		maxWorkers: maxWorkers,
	}
	p.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}
	return p
}

// Submit blocks until a worker takes the job, the job context ends or the
// pool is stopped.
func (p *Pool[T]) Submit(job Job[T]) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		lg.FromContext(job.Ctx).Debug("job submitted", lg.Any("job", job.Payload))
		return nil
	case <-job.Ctx.Done():
		return job.Ctx.Err()
	}
}

// Stop rejects further jobs and waits for every worker to finish the job it
// holds.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool[T]) run(job Job[T]) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer func() {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}()
	logger := lg.FromContext(job.Ctx).With(lg.Any("job", job.Payload))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic", lg.Any("panic", fmt.Sprint(r)))
		}
	}()

	if err := job.Ctx.Err(); err != nil {
		logger.Info("job canceled before start", lg.Err(err))
		return
	}
	logger.Debug("worker started", lg.Int32("workers", atomic.LoadInt32(&p.activeWorkers)))
	if err := job.Fn(job.Ctx, job.Payload); err != nil {
		logger.Warn("worker error", lg.Err(err))
		return
	}
	logger.Debug("worker finished", lg.Int32("workers", atomic.LoadInt32(&p.activeWorkers)))
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}

func (p *Pool[T]) Size() int {
	return p.maxWorkers
}
