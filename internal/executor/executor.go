// Package executor maps a task kind to the matrix computation that serves it.
package executor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/chupacca/pcmatrix/internal/matrix"
	"github.com/chupacca/pcmatrix/pkg/types"
)

// MaxDim bounds rows and cols so a single descriptor cannot exhaust memory.
const MaxDim = 1000

// MaxElement bounds the magnitude of the fill element so the sum of the
// largest matrix still fits in an int64.
const MaxElement = math.MaxInt64 / (MaxDim * MaxDim)

var (
	ErrUnknownKind = errors.New("unknown kind")
	ErrDimension   = errors.New("invalid matrix dimensions")
	ErrGenType     = errors.New("unknown generation type")
	ErrElement     = errors.New("element out of range")
)

// Executor computes the outcome of one task. Implementations must be safe for
// concurrent use by every worker.
//
// ctx carries the caller's deadline, if any. The pool passes its run context
// and sets no per-task timeout.
type Executor interface {
	Execute(ctx context.Context, t types.Task) (types.Outcome, error)
}

// Handler serves one kind. It receives a fully validated task.
type Handler func(ctx context.Context, t types.Task) (types.Outcome, error)

// Dispatcher is the matrix Executor. Its handler table is fixed at
// construction and only read afterwards.
type Dispatcher struct {
	handlers map[types.Kind]Handler
}

type Option func(*Dispatcher)

// WithHandler adds or replaces the handler for kind.
func WithHandler(kind types.Kind, h Handler) Option {
	return func(d *Dispatcher) { d.handlers[kind] = h }
}

// New returns a Dispatcher serving generate, sum, average and display.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: map[types.Kind]Handler{
			types.KindGenerate: generate,
			types.KindSum:      sum,
			types.KindAverage:  average,
			types.KindDisplay:  display,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Execute(ctx context.Context, t types.Task) (types.Outcome, error) {
	h, ok := d.handlers[t.Kind]
	if !ok {
		return types.Outcome{}, fmt.Errorf("%w %q", ErrUnknownKind, t.Kind)
	}
	if err := ctx.Err(); err != nil {
		return types.Outcome{}, err
	}
	return h(ctx, t)
}

// build allocates and fills the matrix described by the task operands.
func build(ctx context.Context, t types.Task) (*matrix.Matrix, error) {
	if t.Rows < 1 || t.Rows > MaxDim || t.Cols < 1 || t.Cols > MaxDim {
		return nil, fmt.Errorf("%w: %dx%d, each must be in [1, %d]", ErrDimension, t.Rows, t.Cols, MaxDim)
	}
	if e := int64(t.Element); e < -MaxElement || e > MaxElement {
		return nil, fmt.Errorf("%w: %d, magnitude must be at most %d", ErrElement, t.Element, int64(MaxElement))
	}

	m := matrix.New(t.Rows, t.Cols)
	switch t.Gen {
	case types.GenRandom, "":
		m.FillRandom(rand.New(rand.NewSource(seed(t))), t.Element)
	case types.GenSequential:
		m.FillSequential()
	case types.GenConstant:
		m.FillConstant(t.Element)
	case types.GenIdentity:
		m.FillIdentity()
	case types.GenZero:
	default:
		return nil, fmt.Errorf("%w %q", ErrGenType, t.Gen)
	}

	return m, ctx.Err()
}

func seed(t types.Task) int64 {
	if t.Seed != 0 {
		return t.Seed
	}
	return int64(binary.BigEndian.Uint64(t.ID[:8]))
}

func render(m *matrix.Matrix) (string, error) {
	var sb strings.Builder
	if err := m.Display(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// generate returns the matrix together with its sum as a checksum.
func generate(ctx context.Context, t types.Task) (types.Outcome, error) {
	m, err := build(ctx, t)
	if err != nil {
		return types.Outcome{}, err
	}
	text, err := render(m)
	if err != nil {
		return types.Outcome{}, err
	}
	s := m.Sum()
	return types.Outcome{Value: &s, Matrix: text}, nil
}

func sum(ctx context.Context, t types.Task) (types.Outcome, error) {
	m, err := build(ctx, t)
	if err != nil {
		return types.Outcome{}, err
	}
	s := m.Sum()
	return types.Outcome{Value: &s}, nil
}

func average(ctx context.Context, t types.Task) (types.Outcome, error) {
	m, err := build(ctx, t)
	if err != nil {
		return types.Outcome{}, err
	}
	a := m.Average()
	return types.Outcome{Value: &a}, nil
}

func display(ctx context.Context, t types.Task) (types.Outcome, error) {
	m, err := build(ctx, t)
	if err != nil {
		return types.Outcome{}, err
	}
	text, err := render(m)
	if err != nil {
		return types.Outcome{}, err
	}
	return types.Outcome{Matrix: text}, nil
}
