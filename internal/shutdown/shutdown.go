package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chupacca/pcmatrix/internal/logger"
)

// WithSignal returns a child context that is cancelled on SIGINT or SIGTERM,
// or when the parent is done. Further signals are ignored until cancel is
// called; the pipeline drains instead of dying mid-task.
func WithSignal(parent context.Context) (ctx context.Context, cancel context.CancelFunc) {
	return withSignals(parent, os.Interrupt, syscall.SIGTERM)
}

func withSignals(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancelCtx := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
		case <-done:
		case sig := <-ch:
			logger.Infof("received %v, no new tasks will be read; draining the queue", sig)
			cancelCtx()
			<-done
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
			cancelCtx()
		})
	}
}
