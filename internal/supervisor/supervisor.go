package supervisor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chupacca/pcmatrix/internal/collector"
	"github.com/chupacca/pcmatrix/internal/config"
	"github.com/chupacca/pcmatrix/internal/executor"
	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/internal/metrics"
	"github.com/chupacca/pcmatrix/internal/producer"
	"github.com/chupacca/pcmatrix/internal/queue"
	"github.com/chupacca/pcmatrix/internal/source"
	"github.com/chupacca/pcmatrix/internal/worker"
	"github.com/chupacca/pcmatrix/pkg/backlog"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// Supervisor owns one run of the pipeline: the source, the queue, the
// producer and a fixed pool of workers.
type Supervisor struct {
	cfg *config.Config

	src     *source.Dir
	queue   *queue.Bounded[types.Task]
	pool    *worker.Pool
	backlog backlog.Counter
	metrics *metrics.Handle

	exec executor.Executor
	sink collector.Sink
}

type Option func(*Supervisor)

// WithExecutor replaces the matrix executor.
func WithExecutor(e executor.Executor) Option {
	return func(s *Supervisor) { s.exec = e }
}

// WithSink replaces the directory sink. Results still pass through the
// backlog and metrics accounting.
func WithSink(sink collector.Sink) Option {
	return func(s *Supervisor) { s.sink = sink }
}

// New validates cfg and prepares every component. It fails if the source
// directory cannot be read or the sink directory cannot be created, before
// any task is produced.
func New(cfg *config.Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Supervisor{cfg: cfg, metrics: metrics.New()}
	for _, opt := range opts {
		opt(s)
	}
	if s.exec == nil {
		s.exec = executor.New()
	}

	q, err := queue.New[types.Task](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	s.queue = q

	s.src, err = source.NewDir(cfg.Source.Dir, source.Options{
		Ext:     cfg.Source.Ext,
		Watch:   cfg.Source.Watch,
		Consume: cfg.Source.Consume,
	})
	if err != nil {
		return nil, err
	}
	if s.sink == nil {
		dir, err := collector.NewDir(cfg.Sink.Dir)
		if err != nil {
			s.src.Close()
			return nil, err
		}
		s.sink = dir
	}

	s.metrics.WatchQueue(q.Len, q.Cap)
	s.metrics.WatchBacklog(s.backlog.Load)
	s.pool = worker.NewPool(cfg.Workers, q, s.exec, collector.Count(s.sink, &s.backlog, s.metrics))
	return s, nil
}

// Run blocks until the producer has stopped and every worker has consumed
// its sentinel. Cancelling ctx only stops the producer; tasks already queued
// still run. The returned error is the producer's, if any.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.src.Close()

	logger.Infof("pipeline starting: %d workers, queue capacity %d, source %s, sink %s",
		s.cfg.Workers, s.cfg.Capacity, s.cfg.Source.Dir, s.cfg.Sink.Dir)

	// The metrics endpoint outlives ctx so the drain stays observable.
	metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
	var side errgroup.Group
	if port := s.cfg.Metrics.PrometheusPort; port > 0 {
		side.Go(func() error {
			if err := s.metrics.Serve(metricsCtx, port); err != nil {
				logger.Errorf("%v", err)
			}
			return nil
		})
	}

	// Not errgroup.WithContext: a producer failure must not cancel the
	// workers, which stop on their sentinels.
	var g errgroup.Group
	s.pool.Start(context.WithoutCancel(ctx))
	g.Go(func() error {
		s.pool.Wait()
		return nil
	})
	g.Go(func() error {
		return producer.Run(ctx, producer.Config{
			Source:  s.src,
			Queue:   s.queue,
			Workers: s.pool.Size(),
			Backlog: &s.backlog,
			Metrics: s.metrics,
		})
	})
	err := g.Wait()

	stopMetrics()
	_ = side.Wait()

	if left := s.backlog.Load(); left != 0 {
		logger.Errorf("all %d workers joined with %d tasks unaccounted for", s.cfg.Workers, left)
	} else {
		logger.Infof("all %d workers joined, backlog empty", s.cfg.Workers)
	}
	return err
}
