package backlog

import "sync/atomic"

// Counter is a threadsafe count of tasks that were enqueued but whose
// result has not reached the sink yet. A clean shutdown leaves it at zero.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() {
	c.n.Add(1)
}

func (c *Counter) Dec() {
	c.n.Add(-1)
}

func (c *Counter) Load() int64 {
	return c.n.Load()
}
