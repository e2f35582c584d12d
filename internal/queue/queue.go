// Package queue provides the bounded FIFO buffer shared by the producer and
// the worker pool.
package queue

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 250

// ErrCapacity is returned by New for a non-positive capacity.
var ErrCapacity = errors.New("queue capacity must be positive")

// noCopy makes `go vet` flag a Bounded that is passed by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Bounded is a fixed-capacity ring buffer with blocking Put and Get.
// One mutex guards the slots and the occupancy count; notFull and notEmpty
// are both tied to that mutex so a signal can never slip in between a
// waiter's predicate check and its Wait.
//
// A Bounded must be shared by pointer.
type Bounded[T any] struct {
	_ noCopy

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	// GUARDED_BY(mu)
	slots []T
	head  int
	count int
}

// New returns an empty queue holding at most capacity items.
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}

	q := &Bounded[T]{slots: make([]T, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// Put appends v at the tail, blocking while the queue is full.
func (q *Bounded[T]) Put(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.slots) {
		q.notFull.Wait()
	}

	q.slots[(q.head+q.count)%len(q.slots)] = v
	q.count++
	q.checkInvariants()

	q.notEmpty.Signal()
}

// Get removes and returns the head item, blocking while the queue is empty.
func (q *Bounded[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 {
		q.notEmpty.Wait()
	}

	var zero T
	v := q.slots[q.head]
	q.slots[q.head] = zero
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	q.checkInvariants()

	q.notFull.Signal()
	return v
}

// Len returns the current occupancy.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.slots)
}

// LOCKS_REQUIRED(mu)
//
// A broken count means the ring can no longer be trusted; there is no safe
// way to continue.
func (q *Bounded[T]) checkInvariants() {
	if q.count < 0 || q.count > len(q.slots) {
		panic(fmt.Sprintf("queue: count %d outside [0, %d]", q.count, len(q.slots)))
	}
	if q.head < 0 || q.head >= len(q.slots) {
		panic(fmt.Sprintf("queue: head %d outside [0, %d)", q.head, len(q.slots)))
	}
}
