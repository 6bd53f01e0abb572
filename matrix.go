package gudamm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Matrix is a dense row-major matrix of float32 values held in host
// memory. Element (i, j) is Data[i*Columns+j].
type Matrix struct {
	Rows    int
	Columns int
	Data    []float32
}

// NewMatrix returns a zero rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows:    rows,
		Columns: cols,
		Data:    make([]float32, rows*cols),
	}
}

// NewMatrixFromData wraps data, which must hold exactly rows*cols values.
func NewMatrixFromData(rows, cols int, data []float32) (*Matrix, error) {
	m := &Matrix{Rows: rows, Columns: cols, Data: data}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMatrixFromRows copies a slice of equally long rows.
func NewMatrixFromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, NewInvalidArgError("NewMatrixFromRows", "no rows")
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.Columns {
			return nil, NewInvalidArgError("NewMatrixFromRows", fmt.Sprintf(
				"row %d has %d values, expected %d", i, len(row), m.Columns))
		}
		copy(m.Data[i*m.Columns:], row)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = 1
	}
	return m
}

// RandomMatrix fills a rows x cols matrix with values in [-1, 1).
func RandomMatrix(rows, cols int, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

// Validate checks that the matrix is non-empty and that its buffer holds
// exactly Rows*Columns values.
func (m *Matrix) Validate() error {
	if m == nil {
		return NewInvalidArgError("Matrix", "nil matrix")
	}
	if m.Rows < 1 || m.Columns < 1 {
		return NewInvalidArgError("Matrix", fmt.Sprintf("invalid dimensions %dx%d", m.Rows, m.Columns))
	}
	if m.Rows > math.MaxInt/m.Columns {
		return NewInvalidArgError("Matrix", fmt.Sprintf("%dx%d elements overflow int", m.Rows, m.Columns))
	}
	if len(m.Data) != m.Rows*m.Columns {
		return NewInvalidArgError("Matrix", fmt.Sprintf(
			"buffer holds %d values, %dx%d needs %d", len(m.Data), m.Rows, m.Columns, m.Rows*m.Columns))
	}
	return nil
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Columns+j]
}

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Columns+j] = v
}

// Bytes returns the size of the buffer in bytes.
func (m *Matrix) Bytes() int {
	return len(m.Data) * 4
}

// Row returns row i, sharing the matrix buffer.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Columns : (i+1)*m.Columns]
}

func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < m.Rows; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprint(&sb, m.Row(i))
	}
	sb.WriteByte(']')
	return sb.String()
}
