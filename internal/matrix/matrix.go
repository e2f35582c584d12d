// Package matrix holds the integer matrix routines the executor is built on.
// A Matrix is owned by a single caller; nothing here is shared.
package matrix

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
)

// DefaultRandomBound is the exclusive upper bound for random elements when
// the task does not set one.
const DefaultRandomBound = 100

type Matrix struct {
	rows, cols int
	cells      []int
}

// New allocates a zeroed rows x cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, cells: make([]int, rows*cols)}
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) At(r, c int) int     { return m.cells[r*m.cols+c] }
func (m *Matrix) Set(r, c int, v int) { m.cells[r*m.cols+c] = v }

// FillRandom sets every element to a value in [0, bound) drawn from rng.
func (m *Matrix) FillRandom(rng *rand.Rand, bound int) {
	if bound <= 0 {
		bound = DefaultRandomBound
	}
	for i := range m.cells {
		m.cells[i] = rng.Intn(bound)
	}
}

// FillSequential numbers the elements 1, 2, 3, ... in row-major order.
func (m *Matrix) FillSequential() {
	for i := range m.cells {
		m.cells[i] = i + 1
	}
}

func (m *Matrix) FillConstant(v int) {
	for i := range m.cells {
		m.cells[i] = v
	}
}

// FillIdentity puts ones on the main diagonal and zeroes elsewhere. It is
// defined for non-square matrices too.
func (m *Matrix) FillIdentity() {
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			if r == c {
				m.Set(r, c, 1)
			} else {
				m.Set(r, c, 0)
			}
		}
	}
}

func (m *Matrix) Sum() int64 {
	var s int64
	for _, v := range m.cells {
		s += int64(v)
	}
	return s
}

// Average is the integer mean of all elements, truncated toward zero.
func (m *Matrix) Average() int64 {
	if len(m.cells) == 0 {
		return 0
	}
	return m.Sum() / int64(len(m.cells))
}

// Display writes the matrix one row per line with right-aligned columns.
func (m *Matrix) Display(w io.Writer) error {
	width := 1
	for _, v := range m.cells {
		width = max(width, len(strconv.Itoa(v)))
	}

	bw := bufio.NewWriter(w)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%*d", width, m.At(r, c))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
