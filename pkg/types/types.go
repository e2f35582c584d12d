package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskFailed wraps every failure reported in a Result so the collector
// can tell execution errors apart from its own.
var ErrTaskFailed = errors.New("task failed")

// Kind selects the computation a Task asks for.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindSum      Kind = "sum"
	KindAverage  Kind = "average"
	KindDisplay  Kind = "display"

	// KindStop marks the sentinel that tells one worker to exit.
	KindStop Kind = "stop"
	// KindExit is a descriptor-level stop request. The producer consumes it;
	// it never reaches the queue.
	KindExit Kind = "exit"
)

// GenType selects how a matrix is filled.
type GenType string

const (
	GenRandom     GenType = "random"
	GenSequential GenType = "sequential"
	GenConstant   GenType = "constant"
	GenIdentity   GenType = "identity"
	GenZero       GenType = "zero"
)

// Task represents a single unit of work produced by the Producer
// and consumed by the Worker pool. It is passed by value and never
// modified once enqueued.
type Task struct {
	ID   uuid.UUID // unique, assigned at creation
	Name string    // descriptor name, used for the result file
	Kind Kind

	Rows    int
	Cols    int
	Gen     GenType
	Element int   // constant fill value, or exclusive upper bound for random
	Seed    int64 // random seed; 0 means derive from ID
	Target  string
}

// Stop returns the sentinel task. It has no ID and no operands.
func Stop() Task {
	return Task{Kind: KindStop}
}

// IsSentinel reports whether t is the worker stop sentinel.
func (t Task) IsSentinel() bool {
	return t.Kind == KindStop && t.ID == uuid.Nil
}

// OutputName is the base name the result is stored under.
func (t Task) OutputName() string {
	if t.Target != "" {
		return t.Target
	}
	if t.Name != "" {
		return t.Name
	}
	return t.ID.String()
}

// Outcome is the success payload of an execution.
type Outcome struct {
	Value  *int64 // sum or average; the sum as a checksum for generate; nil for display
	Matrix string // rendered matrix for generate and display
}

// Result is emitted by each Worker after processing a Task.
// If Err is non-nil the Outcome is empty.
type Result struct {
	TaskID   uuid.UUID
	TaskName string
	Output   string // Task.OutputName()
	Kind     Kind
	WorkerID int

	Outcome Outcome
	Err     error

	Started  time.Time
	Duration time.Duration
}

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Err == nil }
