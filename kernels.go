package gudamm

import "fmt"

// Validate asserts that A (ARows x AColumns) and B (BRows x BColumns) can
// be multiplied, i.e. that they share the contraction dimension.
func (s Shape) Validate(op string) error {
	if s.ARows < 1 || s.AColumns < 1 || s.BRows < 1 || s.BColumns < 1 {
		return NewInvalidArgError(op, fmt.Sprintf("invalid operand dimensions %dx%d and %dx%d",
			s.ARows, s.AColumns, s.BRows, s.BColumns))
	}
	if s.AColumns != s.BRows {
		return NewDimensionMismatchError(op, s.ARows, s.AColumns, s.BRows, s.BColumns)
	}
	return nil
}

// gemm holds the resolved operands of C = A·B where A is m x k, B is k x n
// and C is m x n, all row-major.
type gemm struct {
	a, b, c           []float32
	rows, cols, depth int
}

func newGEMM(op string, a, b, c DevicePtr, shape Shape) (gemm, error) {
	if err := shape.Validate(op); err != nil {
		return gemm{}, err
	}
	g := gemm{rows: shape.ARows, cols: shape.BColumns, depth: shape.AColumns}
	for _, operand := range []struct {
		name  string
		ptr   DevicePtr
		elems int
		dst   *[]float32
	}{
		{"A", a, g.rows * g.depth, &g.a},
		{"B", b, g.depth * g.cols, &g.b},
		{"C", c, g.rows * g.cols, &g.c},
	} {
		data := operand.ptr.Float32()
		if len(data) < operand.elems {
			return gemm{}, NewInvalidArgError(op, fmt.Sprintf(
				"device buffer %s holds %d values, needs %d", operand.name, len(data), operand.elems))
		}
		*operand.dst = data[:operand.elems]
	}
	return g, nil
}

// NaiveKernel computes one element of C per thread with a full-length dot
// product read straight from device memory.
type NaiveKernel struct {
	gemm
}

// NewNaiveKernel binds the kernel to device buffers holding A, B and C.
func NewNaiveKernel(a, b, c DevicePtr, shape Shape) (*NaiveKernel, error) {
	g, err := newGEMM("NewNaiveKernel", a, b, c, shape)
	if err != nil {
		return nil, err
	}
	return &NaiveKernel{gemm: g}, nil
}

func (k *NaiveKernel) Name() string {
	return "naive"
}

// Execute computes C[row, col] for the thread's global coordinate. Threads
// of edge blocks outside C do nothing.
func (k *NaiveKernel) Execute(tid ThreadID) {
	row := tid.GlobalY()
	col := tid.GlobalX()
	if row >= k.rows || col >= k.cols {
		return
	}
	var sum float32
	for i := 0; i < k.depth; i++ {
		sum += k.a[row*k.depth+i] * k.b[i*k.cols+col]
	}
	k.c[row*k.cols+col] = sum
}

// TiledKernel computes the same product as NaiveKernel but stages
// tileWidth x tileWidth tiles of A and B in the block's shared memory, so
// each element loaded from device memory is used tileWidth times.
//
// It must be launched cooperatively with a tileWidth x tileWidth block and
// 2*tileWidth*tileWidth*4 bytes of shared memory (see LaunchGeometry).
type TiledKernel struct {
	gemm
	tileWidth int
}

// NewTiledKernel binds the kernel to device buffers holding A, B and C.
func NewTiledKernel(a, b, c DevicePtr, shape Shape, tileWidth int) (*TiledKernel, error) {
	if tileWidth < 1 {
		return nil, NewInvalidArgError("NewTiledKernel", fmt.Sprintf("invalid tile width %d", tileWidth))
	}
	g, err := newGEMM("NewTiledKernel", a, b, c, shape)
	if err != nil {
		return nil, err
	}
	return &TiledKernel{gemm: g, tileWidth: tileWidth}, nil
}

func (k *TiledKernel) Name() string {
	return "tiled"
}

// Execute accumulates C[row, col] tile by tile. Every thread of the block
// loads one element of the A tile and one of the B tile, substituting zero
// outside the operands so partial tiles at the edges add nothing.
func (k *TiledKernel) Execute(tid ThreadID, blk *Block) {
	tw := k.tileWidth
	shared := blk.SharedFloat32()
	tileA := shared[:tw*tw]
	tileB := shared[tw*tw : 2*tw*tw]

	tx, ty := tid.ThreadIdx.X, tid.ThreadIdx.Y
	row := tid.BlockIdx.Y*tw + ty
	col := tid.BlockIdx.X*tw + tx

	var sum float32
	numTiles := ceilDiv(k.depth, tw)
	for t := 0; t < numTiles; t++ {
		aCol := t*tw + tx
		if row < k.rows && aCol < k.depth {
			tileA[ty*tw+tx] = k.a[row*k.depth+aCol]
		} else {
			tileA[ty*tw+tx] = 0
		}
		bRow := t*tw + ty
		if bRow < k.depth && col < k.cols {
			tileB[ty*tw+tx] = k.b[bRow*k.cols+col]
		} else {
			tileB[ty*tw+tx] = 0
		}

		// the whole tile must be loaded before anyone reads it
		blk.SyncThreads()

		for i := 0; i < tw; i++ {
			sum += tileA[ty*tw+i] * tileB[i*tw+tx]
		}

		// and read by everyone before the next tile overwrites it
		blk.SyncThreads()
	}

	if row < k.rows && col < k.cols {
		k.c[row*k.cols+col] = sum
	}
}
