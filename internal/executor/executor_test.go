package executor

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chupacca/pcmatrix/pkg/types"
)

func task(kind types.Kind, rows, cols int, gen types.GenType, ele int) types.Task {
	return types.Task{ID: uuid.New(), Kind: kind, Rows: rows, Cols: cols, Gen: gen, Element: ele}
}

func TestExecute_Values(t *testing.T) {
	tests := []struct {
		name string
		task types.Task
		want int64
	}{
		{"sum sequential", task(types.KindSum, 3, 3, types.GenSequential, 0), 45},
		{"sum constant", task(types.KindSum, 2, 5, types.GenConstant, 7), 70},
		{"sum identity", task(types.KindSum, 4, 4, types.GenIdentity, 0), 4},
		{"sum zero", task(types.KindSum, 4, 4, types.GenZero, 0), 0},
		{"average sequential", task(types.KindAverage, 1, 4, types.GenSequential, 0), 2},
		{"average constant", task(types.KindAverage, 5, 5, types.GenConstant, 3), 3},
		{"generate checksum", task(types.KindGenerate, 2, 2, types.GenSequential, 0), 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := New().Execute(context.Background(), tc.task)

			require.NoError(t, err)
			require.NotNil(t, out.Value)
			assert.Equal(t, tc.want, *out.Value)
		})
	}
}

func TestExecute_Display(t *testing.T) {
	out, err := New().Execute(context.Background(), task(types.KindDisplay, 2, 3, types.GenSequential, 0))

	require.NoError(t, err)
	assert.Nil(t, out.Value)
	assert.Equal(t, "1 2 3\n4 5 6\n", out.Matrix)
}

func TestExecute_RandomIsReproducibleWithSeed(t *testing.T) {
	a := task(types.KindDisplay, 5, 5, types.GenRandom, 10)
	a.Seed = 99
	b := a
	b.ID = uuid.New()

	outA, err := New().Execute(context.Background(), a)
	require.NoError(t, err)
	outB, err := New().Execute(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, outA.Matrix, outB.Matrix)
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name string
		task types.Task
		want error
	}{
		{"unknown kind", task("transpose", 2, 2, types.GenZero, 0), ErrUnknownKind},
		{"zero rows", task(types.KindSum, 0, 2, types.GenZero, 0), ErrDimension},
		{"negative cols", task(types.KindSum, 2, -1, types.GenZero, 0), ErrDimension},
		{"too large", task(types.KindSum, MaxDim+1, 1, types.GenZero, 0), ErrDimension},
		{"bad gen type", task(types.KindAverage, 2, 2, "spiral", 0), ErrGenType},
		{"sum would overflow", task(types.KindSum, 1, 2, types.GenConstant, math.MaxInt64), ErrElement},
		{"average would overflow", task(types.KindAverage, 1, 2, types.GenConstant, math.MaxInt64), ErrElement},
		{"element too negative", task(types.KindGenerate, 1, 1, types.GenConstant, -MaxElement-1), ErrElement},
		{"random bound too large", task(types.KindSum, 1, 1, types.GenRandom, MaxElement+1), ErrElement},
		{"sentinel is not executable", types.Stop(), ErrUnknownKind},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := New().Execute(context.Background(), tc.task)

			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, types.Outcome{}, out)
		})
	}
}

func TestExecute_UnknownKindReason(t *testing.T) {
	_, err := New().Execute(context.Background(), task("transpose", 1, 1, "", 0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Execute(ctx, task(types.KindSum, 2, 2, types.GenZero, 0))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithHandler(t *testing.T) {
	d := New(WithHandler("count", func(_ context.Context, t types.Task) (types.Outcome, error) {
		n := int64(t.Rows * t.Cols)
		return types.Outcome{Value: &n}, nil
	}))

	out, err := d.Execute(context.Background(), task("count", 3, 4, "", 0))

	require.NoError(t, err)
	assert.Equal(t, int64(12), *out.Value)
}

func TestExecute_NoCrossTalk(t *testing.T) {
	d := New()
	const n = 64

	var wg sync.WaitGroup
	got := make([]int64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := d.Execute(context.Background(), task(types.KindSum, i+1, i+1, types.GenConstant, i))
			if assert.NoError(t, err) {
				got[i] = *out.Value
			}
		}()
	}
	wg.Wait()

	for i := range n {
		assert.Equal(t, int64((i+1)*(i+1)*i), got[i], "task %d", i)
	}
}

func TestExecute_LargestSumFits(t *testing.T) {
	out, err := New().Execute(context.Background(), task(types.KindSum, MaxDim, MaxDim, types.GenConstant, MaxElement))

	require.NoError(t, err)
	require.NotNil(t, out.Value)
	assert.Equal(t, int64(MaxElement)*MaxDim*MaxDim, *out.Value)
	assert.Positive(t, *out.Value)
}
