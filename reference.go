// Package gudamm reference implementations for verification
package gudamm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Reference contains simple host implementations the device kernels are
// checked against.
type Reference struct{}

// MatMul computes C = A·B with the textbook triple loop, summing each dot
// product in index order.
func (Reference) MatMul(a, b *Matrix) (*Matrix, error) {
	if err := checkOperands("Reference.MatMul", a, b); err != nil {
		return nil, err
	}
	c := NewMatrix(a.Rows, b.Columns)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Columns; j++ {
			var sum float32
			for p := 0; p < a.Columns; p++ {
				sum += a.Data[i*a.Columns+p] * b.Data[p*b.Columns+j]
			}
			c.Data[i*c.Columns+j] = sum
		}
	}
	return c, nil
}

// BLAS computes C = A·B with gonum's SGEMM. It is much faster than MatMul
// and is used as the reference for large benchmark shapes.
func (Reference) BLAS(a, b *Matrix) (*Matrix, error) {
	if err := checkOperands("Reference.BLAS", a, b); err != nil {
		return nil, err
	}
	c := NewMatrix(a.Rows, b.Columns)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, general(a), general(b), 0, general(c))
	return c, nil
}

func general(m *Matrix) blas32.General {
	return blas32.General{
		Rows:   m.Rows,
		Cols:   m.Columns,
		Stride: m.Columns,
		Data:   m.Data,
	}
}

func checkOperands(op string, a, b *Matrix) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	return Shape{ARows: a.Rows, AColumns: a.Columns, BRows: b.Rows, BColumns: b.Columns}.Validate(op)
}
