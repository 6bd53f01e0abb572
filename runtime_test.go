package gudamm

import (
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContext returns a private context so memory accounting is not
// shared with other tests.
func newTestContext(t testing.TB, opts ...ContextOption) *Context {
	t.Helper()
	ctx := NewContext(opts...)
	t.Cleanup(ctx.Destroy)
	return ctx
}

// Test basic memory allocation and deallocation
func TestMemoryAllocation(t *testing.T) {
	ctx := newTestContext(t)
	sizes := []int{1, 100, 1000, 10000, 1000000}

	for _, size := range sizes {
		ptr, err := ctx.Malloc(size * 4)
		if err != nil {
			t.Fatalf("Failed to allocate %d bytes: %v", size*4, err)
		}

		slice := ptr.Float32()
		if len(slice) != size {
			t.Errorf("Expected slice length %d, got %d", size, len(slice))
		}
		for i := 0; i < min(100, size); i++ {
			slice[i] = float32(i)
		}
		for i := 0; i < min(100, size); i++ {
			if slice[i] != float32(i) {
				t.Errorf("Memory corruption at index %d", i)
			}
		}

		if err = ctx.Free(ptr); err != nil {
			t.Fatalf("Failed to free memory: %v", err)
		}
	}
	assert.Zero(t, ctx.MemoryStats().Live)
}

func TestMallocInvalidSize(t *testing.T) {
	ctx := newTestContext(t)
	for _, size := range []int{0, -1} {
		_, err := ctx.Malloc(size)
		assert.Equal(t, ErrInvalidSize, err)
	}
}

// Test memory copy operations
func TestMemcpy(t *testing.T) {
	const N = 1000
	ctx := newTestContext(t)

	h_src := make([]float32, N)
	h_dst := make([]float32, N)
	for i := 0; i < N; i++ {
		h_src[i] = rand.Float32()
	}

	d_src := MallocOrFail(t, ctx, N*4)
	d_dst := MallocOrFail(t, ctx, N*4)
	defer ctx.Free(d_src)
	defer ctx.Free(d_dst)

	MemcpyOrFail(t, ctx, d_src, h_src, N*4, MemcpyHostToDevice)
	MemcpyOrFail(t, ctx, d_dst, d_src, N*4, MemcpyDeviceToDevice)
	MemcpyOrFail(t, ctx, h_dst, d_dst, N*4, MemcpyDeviceToHost)
	assert.Equal(t, h_src, h_dst)

	// partial copies leave the rest untouched
	h_part := make([]float32, N)
	MemcpyOrFail(t, ctx, h_part, d_dst, 8, MemcpyDeviceToHost)
	assert.Equal(t, h_src[:2], h_part[:2])
	assert.Zero(t, h_part[2])
}

func TestMemcpyDirection(t *testing.T) {
	ctx := newTestContext(t)
	d := MallocOrFail(t, ctx, 64)
	defer ctx.Free(d)
	h := make([]float32, 16)

	tests := []struct {
		name     string
		dst, src interface{}
		kind     MemcpyKind
	}{
		{"host destination for HostToDevice", h, h, MemcpyHostToDevice},
		{"device source for HostToDevice", d, d, MemcpyHostToDevice},
		{"device destination for DeviceToHost", d, d, MemcpyDeviceToHost},
		{"host source for DeviceToDevice", d, h, MemcpyDeviceToDevice},
		{"device operand for HostToHost", h, d, MemcpyHostToHost},
		{"unknown kind", d, h, MemcpyKind(42)},
		{"unsupported type", d, []string{"x"}, MemcpyHostToDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctx.Memcpy(tt.dst, tt.src, 64, tt.kind)
			assert.True(t, IsInvalidArgError(err), "got %v", err)
		})
	}

	assert.True(t, IsInvalidArgError(ctx.Memcpy(d, h, -4, MemcpyHostToDevice)))
	// MemcpyDefault infers the direction
	assert.NoError(t, ctx.Memcpy(d, h, 64, MemcpyDefault))
	assert.NoError(t, ctx.Memcpy(h, d, 64, MemcpyDefault))
}

func TestMemcpyOverrun(t *testing.T) {
	ctx := newTestContext(t)
	d := MallocOrFail(t, ctx, 16)
	defer ctx.Free(d)

	err := ctx.Memcpy(d, make([]float32, 8), 32, MemcpyHostToDevice)
	assert.True(t, IsMemoryError(err), "got %v", err)
	err = ctx.Memcpy(make([]float32, 2), d, 16, MemcpyDeviceToHost)
	assert.True(t, IsMemoryError(err), "got %v", err)
	// the aligned tail of the allocation is not addressable
	err = ctx.Memcpy(make([]byte, 64), d, 64, MemcpyDeviceToHost)
	assert.True(t, IsMemoryError(err), "got %v", err)
}

func TestFreedPointer(t *testing.T) {
	ctx := newTestContext(t)
	ptr := MallocOrFail(t, ctx, 256)
	require.NoError(t, ctx.Free(ptr))

	assert.Nil(t, ptr.Float32())
	assert.Nil(t, ptr.Byte())
	err := ctx.Memcpy(make([]float32, 64), ptr, 256, MemcpyDeviceToHost)
	assert.True(t, IsMemoryError(err))
	assert.True(t, errors.Is(err, ErrInvalidPointer))
	assert.Equal(t, ErrDoubleFree, ctx.Free(ptr))

	// the block is reused, but the stale pointer stays dead
	again := MallocOrFail(t, ctx, 256)
	defer ctx.Free(again)
	assert.NotNil(t, again.Float32())
	assert.Nil(t, ptr.Float32())
	assert.Equal(t, ErrDoubleFree, ctx.Free(ptr))
}

func TestFreeEdgeCases(t *testing.T) {
	ctx := newTestContext(t)
	assert.NoError(t, ctx.Free(DevicePtr{}))

	ptr := MallocOrFail(t, ctx, 256)
	err := ctx.Free(ptr.Offset(64))
	assert.True(t, IsMemoryError(err))
	require.NoError(t, ctx.Free(ptr))

	other := newTestContext(t)
	foreign := MallocOrFail(t, other, 64)
	defer other.Free(foreign)
	err = ctx.Free(foreign)
	assert.True(t, errors.Is(err, ErrInvalidPointer))
}

func TestOffset(t *testing.T) {
	ctx := newTestContext(t)
	ptr := MallocOrFail(t, ctx, 1024*4)
	defer ctx.Free(ptr)

	data := ptr.Float32()
	for i := range data {
		data[i] = float32(i)
	}
	second := ptr.Offset(512 * 4)
	assert.Equal(t, 512*4, second.Size())
	assert.Equal(t, float32(512), second.Float32()[0])
	assert.Equal(t, 0, ptr.Offset(8192).Size())
}

func TestMemoryLimit(t *testing.T) {
	ctx := newTestContext(t, WithMemoryLimit(1024))
	assert.Equal(t, uint64(1024), ctx.Device().TotalMem)

	first := MallocOrFail(t, ctx, 512)
	_, err := ctx.Malloc(1024)
	assert.True(t, IsMemoryError(err))
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	// cached blocks are evicted to make room
	require.NoError(t, ctx.Free(first))
	big := MallocOrFail(t, ctx, 1024)
	require.NoError(t, ctx.Free(big))

	stats := ctx.MemoryStats()
	assert.Equal(t, int64(1024), stats.Limit)
	assert.LessOrEqual(t, stats.Reserved, stats.Limit)
	assert.Equal(t, int64(1024), stats.Peak)
}

// Test memory pool statistics
func TestMemoryPoolStats(t *testing.T) {
	pool := NewMemoryPool(0)
	a, err := pool.Allocate(100)
	require.NoError(t, err)
	b, err := pool.Allocate(1000)
	require.NoError(t, err)

	allocated, peak := pool.GetStats()
	assert.Equal(t, int64(128+1024), allocated)
	assert.Equal(t, allocated, peak)
	assert.Equal(t, 2, pool.Stats().Live)

	require.NoError(t, pool.Free(a))
	require.NoError(t, pool.Free(b))
	allocated, peak = pool.GetStats()
	assert.Zero(t, allocated)
	assert.Equal(t, int64(128+1024), peak)
	assert.Zero(t, pool.Stats().Live)
	assert.Equal(t, int64(128+1024), pool.Stats().Reserved)
}

// Test basic kernel launch
func TestKernelLaunch(t *testing.T) {
	const N = 10000
	ctx := newTestContext(t)

	d_data := MallocOrFail(t, ctx, N*4)
	defer ctx.Free(d_data)
	slice := d_data.Float32()

	kernel := KernelFunc(func(tid ThreadID) {
		idx := tid.Global()
		if idx < N {
			slice[idx] = float32(idx)
		}
	})
	LaunchOrFail(t, ctx, kernel, Dim3{X: (N + 255) / 256, Y: 1, Z: 1}, Dim3{X: 256, Y: 1, Z: 1})
	SynchronizeOrFail(t, ctx)

	for i := 0; i < N; i++ {
		if slice[i] != float32(i) {
			t.Fatalf("Incorrect value at index %d: expected %f, got %f", i, float32(i), slice[i])
		}
	}
}

func TestLaunchCoversGrid(t *testing.T) {
	ctx := newTestContext(t, WithWorkers(3))
	grid := Dim3{X: 3, Y: 2, Z: 2}
	block := Dim3{X: 4, Y: 2, Z: 3}
	width := grid.X * block.X
	height := grid.Y * block.Y
	depth := grid.Z * block.Z
	visits := make([]atomic.Int32, width*height*depth)

	kernel := KernelFunc(func(tid ThreadID) {
		assert.Equal(t, grid, tid.GridDim)
		assert.Equal(t, block, tid.BlockDim)
		x, y, z := tid.GlobalX(), tid.GlobalY(), tid.GlobalZ()
		visits[(z*height+y)*width+x].Add(1)
	})
	LaunchOrFail(t, ctx, kernel, grid, block)
	SynchronizeOrFail(t, ctx)

	for i := range visits {
		if got := visits[i].Load(); got != 1 {
			t.Fatalf("thread %d ran %d times", i, got)
		}
	}
}

func TestLaunchDefaultsYZ(t *testing.T) {
	ctx := newTestContext(t)
	var count atomic.Int32
	kernel := KernelFunc(func(tid ThreadID) {
		count.Add(1)
	})
	LaunchOrFail(t, ctx, kernel, Dim3{X: 4}, Dim3{X: 8})
	SynchronizeOrFail(t, ctx)
	assert.Equal(t, int32(32), count.Load())
}

func TestLaunchValidation(t *testing.T) {
	ctx := newTestContext(t)
	noop := KernelFunc(func(ThreadID) {})
	coop := CooperativeKernelFunc(func(ThreadID, *Block) {})

	tests := []struct {
		name   string
		launch func() error
	}{
		{"empty grid", func() error { return ctx.Launch(noop, Dim3{}, Dim3{X: 1}) }},
		{"negative block", func() error { return ctx.Launch(noop, Dim3{X: 1}, Dim3{X: -1}) }},
		{"too many threads", func() error { return ctx.Launch(noop, Dim3{X: 1}, Dim3{X: 33, Y: 32}) }},
		{"too much shared memory", func() error {
			return ctx.LaunchCooperative(coop, Dim3{X: 1}, Dim3{X: 1}, MaxSharedMemoryPerBlock+1)
		}},
		{"negative shared memory", func() error { return ctx.LaunchCooperative(coop, Dim3{X: 1}, Dim3{X: 1}, -1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.launch()
			assert.True(t, IsLaunchError(err), "got %v", err)
		})
	}
	assert.NoError(t, ctx.Launch(noop, Dim3{X: 1}, Dim3{X: 32, Y: 32}))
	SynchronizeOrFail(t, ctx)
}

func TestKernelPanic(t *testing.T) {
	ctx := newTestContext(t)
	kernel := KernelFunc(func(tid ThreadID) {
		if tid.Global() == 77 {
			panic("boom")
		}
	})
	// launch errors are deferred to Synchronize, like CUDA
	require.NoError(t, ctx.Launch(kernel, Dim3{X: 4}, Dim3{X: 32}))
	err := ctx.Synchronize()
	assert.True(t, IsExecutionError(err), "got %v", err)
	assert.Contains(t, err.Error(), "boom")

	// the error is reported once
	assert.NoError(t, ctx.Synchronize())
}

func TestStreams(t *testing.T) {
	ctx := newTestContext(t)
	stream := ctx.CreateStream()
	assert.NotEqual(t, 0, stream.ID())

	const N = 256
	data := make([]float32, N)
	// tasks of one stream run in submission order
	for step := 1; step <= 3; step++ {
		step := float32(step)
		kernel := KernelFunc(func(tid ThreadID) {
			data[tid.Global()] = data[tid.Global()]*10 + step
		})
		require.NoError(t, ctx.LaunchStream(kernel, Dim3{X: N / 64}, Dim3{X: 64}, stream))
	}
	require.NoError(t, stream.Synchronize())
	for i := range data {
		assert.Equal(t, float32(123), data[i])
	}
}

func TestDestroyedContext(t *testing.T) {
	ctx := NewContext()
	ctx.Destroy()
	require.NoError(t, ctx.Launch(KernelFunc(func(ThreadID) {}), Dim3{X: 1}, Dim3{X: 1}))
	// submitting after Destroy must not panic
	assert.NotPanics(t, func() {
		_ = ctx.Launch(KernelFunc(func(ThreadID) {}), Dim3{X: 1}, Dim3{X: 1})
	})
	err := ctx.Synchronize()
	assert.True(t, IsDeviceError(err), "got %v", err)
}

func TestThreadIndexing(t *testing.T) {
	tid := ThreadID{
		BlockIdx:  Dim3{X: 2, Y: 1, Z: 3},
		ThreadIdx: Dim3{X: 5, Y: 6, Z: 1},
		BlockDim:  Dim3{X: 16, Y: 8, Z: 2},
		GridDim:   Dim3{X: 4, Y: 4, Z: 4},
	}
	assert.Equal(t, 37, tid.Global())
	assert.Equal(t, 37, tid.GlobalX())
	assert.Equal(t, 14, tid.GlobalY())
	assert.Equal(t, 7, tid.GlobalZ())
	assert.Equal(t, 256, tid.BlockDim.Size())
	assert.Equal(t, "(16,8,2)", tid.BlockDim.String())
}

func TestDeviceProperties(t *testing.T) {
	assert.Equal(t, 1, GetDeviceCount())
	assert.NoError(t, SetDevice(0))
	assert.Equal(t, ErrInvalidDevice, SetDevice(1))

	device, err := GetDeviceProperties(0)
	require.NoError(t, err)
	assert.Same(t, GetDevice(), device)
	assert.Equal(t, MaxThreadsPerBlock, device.MaxThreadsPerBlock)
	assert.Equal(t, MaxSharedMemoryPerBlock, device.SharedMemPerBlock)
	assert.NotEmpty(t, device.Features)

	_, err = GetDeviceProperties(1)
	assert.True(t, IsInvalidArgError(err))
}

func TestKernelName(t *testing.T) {
	assert.Equal(t, "func", kernelName(KernelFunc(func(ThreadID) {})))
	assert.Equal(t, "func", kernelName(CooperativeKernelFunc(func(ThreadID, *Block) {})))
	assert.Equal(t, "naive", kernelName(&NaiveKernel{}))
	assert.Equal(t, "tiled", kernelName(&TiledKernel{}))
}
