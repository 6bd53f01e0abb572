// Package gudamm configuration constants
package gudamm

// Thread and block limits, matching a CUDA compute-capability 2.x+ device.
const (
	// Maximum threads per block
	MaxThreadsPerBlock = 1024

	// Maximum shared memory per block in bytes
	MaxSharedMemoryPerBlock = 48 * 1024
)

// Matrix multiplication parameters
const (
	// DefaultTileWidth is the edge of the square tiles staged in shared
	// memory and of the thread blocks of both kernels.
	DefaultTileWidth = 16

	// MaxTileWidth is the widest tile whose block fits MaxThreadsPerBlock.
	MaxTileWidth = 32
)

// Memory pool parameters
const (
	// Memory alignment for allocations (cache line size)
	MemoryAlignment = 64

	// Budget used when the host memory size cannot be queried
	defaultSystemMemory = 16 * 1024 * 1024 * 1024
)

// Numerical constants
const (
	// Machine epsilon for float32
	Float32Epsilon = 1.192092896e-07
)
