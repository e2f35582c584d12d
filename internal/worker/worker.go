package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/chupacca/pcmatrix/internal/collector"
	"github.com/chupacca/pcmatrix/internal/executor"
	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// Queue is the side of the bounded queue the workers use.
type Queue interface {
	Get() types.Task
}

// Pool is a fixed set of symmetric workers draining one queue. Each worker
// exits on the first sentinel it dequeues, so the producer must enqueue
// exactly one sentinel per worker.
type Pool struct {
	n     int
	queue Queue
	exec  executor.Executor
	sink  collector.Sink

	wg sync.WaitGroup
}

func NewPool(n int, q Queue, exec executor.Executor, sink collector.Sink) *Pool {
	return &Pool{n: n, queue: q, exec: exec, sink: sink}
}

// Size returns the number of workers, which is also the number of sentinels
// the pool needs to shut down.
func (p *Pool) Size() int { return p.n }

// Start launches the workers. ctx is only handed to the executor; cancelling
// it does not stop a worker.
func (p *Pool) Start(ctx context.Context) {
	for id := range p.n {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, id)
		}()
	}
}

// Wait blocks until every worker has consumed its sentinel.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	logger.Debugf("[worker %02d] started", id)
	handled := 0
	for {
		t := p.queue.Get()
		if t.IsSentinel() {
			logger.Debugf("[worker %02d] stopping after %d tasks", id, handled)
			return
		}

		r := p.process(ctx, id, t)
		handled++
		if err := p.sink.Write(ctx, r); err != nil {
			logger.Errorf("[worker %02d] storing result of task %s: %v", id, t.ID, err)
		}
	}
}

// process runs one task to completion. A panicking handler fails its task,
// not the worker.
func (p *Pool) process(ctx context.Context, id int, t types.Task) (r types.Result) {
	r = types.Result{
		TaskID:   t.ID,
		TaskName: t.Name,
		Output:   t.OutputName(),
		Kind:     t.Kind,
		WorkerID: id,
		Started:  time.Now(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("[worker %02d] task %s panicked: %v\n%s", id, t.ID, rec, debug.Stack())
			r.Outcome = types.Outcome{}
			r.Err = fmt.Errorf("%w: panic: %v", types.ErrTaskFailed, rec)
		}
		r.Duration = time.Since(r.Started)
	}()

	logger.Tracef("[worker %02d] executing %s %s", id, t.Kind, t.ID)
	out, err := p.exec.Execute(ctx, t)
	if err != nil {
		r.Err = fmt.Errorf("%w: %w", types.ErrTaskFailed, err)
		return r
	}
	r.Outcome = out
	return r
}
