package gudamm

// LaunchGeometry is the grid and block shape covering an output matrix
// with square tileWidth x tileWidth blocks. Following CUDA convention the
// X axis indexes columns and the Y axis indexes rows.
type LaunchGeometry struct {
	Grid      Dim3
	Block     Dim3
	TileWidth int
}

// NewLaunchGeometry covers a rows x cols output, including partial blocks
// at the right and bottom edges. A tileWidth below one selects
// DefaultTileWidth.
func NewLaunchGeometry(rows, cols, tileWidth int) LaunchGeometry {
	if tileWidth < 1 {
		tileWidth = DefaultTileWidth
	}
	return LaunchGeometry{
		Grid: Dim3{
			X: ceilDiv(cols, tileWidth),
			Y: ceilDiv(rows, tileWidth),
			Z: 1,
		},
		Block:     Dim3{X: tileWidth, Y: tileWidth, Z: 1},
		TileWidth: tileWidth,
	}
}

// GridRows returns the number of block rows.
func (g LaunchGeometry) GridRows() int {
	return g.Grid.Y
}

// GridCols returns the number of block columns.
func (g LaunchGeometry) GridCols() int {
	return g.Grid.X
}

// Threads returns the number of threads launched, including threads of
// edge blocks that fall outside the output.
func (g LaunchGeometry) Threads() int {
	return g.Grid.Size() * g.Block.Size()
}

// SharedMemBytes returns the shared memory a block of the tiled kernel
// needs: one tile of A and one tile of B.
func (g LaunchGeometry) SharedMemBytes() int {
	return 2 * g.TileWidth * g.TileWidth * 4
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
