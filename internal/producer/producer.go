package producer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/chupacca/pcmatrix/internal/logger"
	"github.com/chupacca/pcmatrix/internal/metrics"
	"github.com/chupacca/pcmatrix/internal/parser"
	"github.com/chupacca/pcmatrix/internal/source"
	"github.com/chupacca/pcmatrix/pkg/backlog"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// Queue is the side of the bounded queue the producer uses.
type Queue interface {
	Put(types.Task)
}

type Config struct {
	Source  source.Source
	Parse   func(source.Descriptor) (types.Task, error) // parser.Parse if nil
	Queue   Queue
	Workers int // sentinels pushed on the way out

	Backlog *backlog.Counter
	Metrics *metrics.Handle // optional
}

// Run moves tasks from the source onto the queue until the source is
// exhausted, an exit descriptor arrives or ctx is done. Whatever the reason,
// it then puts exactly cfg.Workers sentinels behind the last task.
//
// Unreadable or malformed descriptors are logged and skipped. The only error
// returned is the source itself becoming unavailable.
//
// Put blocks while the queue is full, so Run never reads ahead of the
// workers by more than the queue capacity.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Parse == nil {
		cfg.Parse = parser.Parse
	}
	defer func() {
		for range cfg.Workers {
			cfg.Queue.Put(types.Stop())
		}
		logger.Debugf("producer: %d sentinels enqueued", cfg.Workers)
	}()

	for {
		d, err := cfg.Source.Next(ctx)
		switch {
		case err == io.EOF:
			logger.Infof("producer: source exhausted")
			return nil
		case err != nil && ctx.Err() != nil:
			// A descriptor returned with a nil error is enqueued even if ctx
			// was cancelled meanwhile; with Consume its file is already gone.
			logger.Infof("producer: shutdown requested")
			return nil
		case errors.Is(err, source.ErrUnavailable):
			logger.Errorf("producer: %v", err)
			return fmt.Errorf("producer: %w", err)
		case err != nil:
			logger.Warnf("producer: skipping %s: %v", d.Name, err)
			skipped(cfg)
			continue
		}

		task, err := cfg.Parse(d)
		if err != nil {
			logger.Warnf("producer: skipping %s: %v", d.Name, err)
			skipped(cfg)
			continue
		}
		if task.Kind == types.KindExit {
			logger.Infof("producer: exit requested by %s", d.Name)
			return nil
		}

		task.ID = uuid.New()
		cfg.Backlog.Inc()
		cfg.Queue.Put(task)
		if cfg.Metrics != nil {
			cfg.Metrics.Enqueued(task.Kind)
		}
		logger.Debugf("producer: enqueued %s %s as %s", task.Kind, task.Name, task.ID)
	}
}

func skipped(cfg Config) {
	if cfg.Metrics != nil {
		cfg.Metrics.Skipped()
	}
}
