package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chupacca/pcmatrix/internal/executor"
	"github.com/chupacca/pcmatrix/internal/queue"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// memSink keeps results in memory.
type memSink struct {
	mu      sync.Mutex
	results []types.Result
	err     error
}

func (s *memSink) Write(_ context.Context, r types.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func (s *memSink) byID() map[uuid.UUID]types.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[uuid.UUID]types.Result, len(s.results))
	for _, r := range s.results {
		m[r.TaskID] = r
	}
	return m
}

func task(kind types.Kind) types.Task {
	return types.Task{ID: uuid.New(), Name: string(kind), Kind: kind, Rows: 3, Cols: 3, Gen: types.GenSequential}
}

func newQueue(t *testing.T, capacity int) *queue.Bounded[types.Task] {
	t.Helper()
	q, err := queue.New[types.Task](capacity)
	require.NoError(t, err)
	return q
}

// waitOrFail fails the test if the pool has not stopped within a few seconds.
func waitOrFail(t *testing.T, p *Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestPool_FiveTasksTwoWorkers(t *testing.T) {
	q := newQueue(t, 16)
	sink := &memSink{}
	var tasks []types.Task
	for range 5 {
		tk := task(types.KindSum)
		tasks = append(tasks, tk)
		q.Put(tk)
	}
	q.Put(types.Stop())
	q.Put(types.Stop())
	p := NewPool(2, q, executor.New(), sink)

	p.Start(context.Background())
	waitOrFail(t, p)

	require.Len(t, sink.results, 5, "no task is processed twice")
	got := sink.byID()
	for _, tk := range tasks {
		r, ok := got[tk.ID]
		require.True(t, ok, "missing result for %s", tk.ID)
		assert.True(t, r.OK())
		require.NotNil(t, r.Outcome.Value)
		assert.Equal(t, int64(45), *r.Outcome.Value)
		assert.Contains(t, []int{0, 1}, r.WorkerID)
	}
	assert.Zero(t, q.Len(), "both sentinels consumed")
}

func TestPool_UnknownKindFailsTask(t *testing.T) {
	q := newQueue(t, 4)
	sink := &memSink{}
	bad := task("transpose")
	good := task(types.KindAverage)
	q.Put(bad)
	q.Put(good)
	q.Put(types.Stop())
	p := NewPool(1, q, executor.New(), sink)

	p.Start(context.Background())
	waitOrFail(t, p)

	got := sink.byID()
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[bad.ID].Err, types.ErrTaskFailed)
	assert.ErrorIs(t, got[bad.ID].Err, executor.ErrUnknownKind)
	assert.Contains(t, got[bad.ID].Err.Error(), "unknown kind")
	assert.True(t, got[good.ID].OK(), "worker keeps going after a failure")
}

func TestPool_ResultFields(t *testing.T) {
	q := newQueue(t, 2)
	sink := &memSink{}
	tk := task(types.KindDisplay)
	tk.Target = "shown"
	q.Put(tk)
	q.Put(types.Stop())
	p := NewPool(1, q, executor.New(), sink)

	p.Start(context.Background())
	waitOrFail(t, p)

	require.Len(t, sink.results, 1)
	r := sink.results[0]
	assert.Equal(t, tk.ID, r.TaskID)
	assert.Equal(t, "display", r.TaskName)
	assert.Equal(t, "shown", r.Output)
	assert.Equal(t, types.KindDisplay, r.Kind)
	assert.NotEmpty(t, r.Outcome.Matrix)
	assert.False(t, r.Started.IsZero())
}

func TestPool_SentinelsStopEveryWorker(t *testing.T) {
	const n = 8
	q := newQueue(t, n)
	p := NewPool(n, q, executor.New(), &memSink{})
	p.Start(context.Background())

	for range n {
		q.Put(types.Stop())
	}

	waitOrFail(t, p)
	assert.Zero(t, q.Len())
}

func TestPool_RecoversHandlerPanic(t *testing.T) {
	q := newQueue(t, 4)
	sink := &memSink{}
	exec := executor.New(executor.WithHandler("boom", func(context.Context, types.Task) (types.Outcome, error) {
		panic("kaboom")
	}))
	bad := task("boom")
	good := task(types.KindSum)
	q.Put(bad)
	q.Put(good)
	q.Put(types.Stop())
	p := NewPool(1, q, exec, sink)

	p.Start(context.Background())
	waitOrFail(t, p)

	got := sink.byID()
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[bad.ID].Err, types.ErrTaskFailed)
	assert.Contains(t, got[bad.ID].Err.Error(), "kaboom")
	assert.True(t, got[good.ID].OK())
}

func TestPool_SinkErrorDoesNotStopWorker(t *testing.T) {
	q := newQueue(t, 4)
	sink := &memSink{err: errors.New("disk full")}
	q.Put(task(types.KindSum))
	q.Put(task(types.KindSum))
	q.Put(types.Stop())
	p := NewPool(1, q, executor.New(), sink)

	p.Start(context.Background())
	waitOrFail(t, p)

	assert.Len(t, sink.results, 2)
}

func TestPool_ManyTasksNoLossNoDuplication(t *testing.T) {
	const (
		workers = 4
		total   = 500
	)
	q := newQueue(t, 8)
	sink := &memSink{}
	p := NewPool(workers, q, executor.New(), sink)
	p.Start(context.Background())

	ids := make(map[uuid.UUID]bool, total)
	for range total {
		tk := task(types.KindSum)
		ids[tk.ID] = true
		q.Put(tk)
	}
	for range workers {
		q.Put(types.Stop())
	}
	waitOrFail(t, p)

	require.Len(t, sink.results, total)
	got := sink.byID()
	assert.Len(t, got, total)
	for id := range ids {
		assert.Contains(t, got, id)
	}
}
