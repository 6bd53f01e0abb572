package gudamm

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// Device describes the compute device. In gudamm this is the CPU with its
// cores, its memory budget and the launch limits the runtime enforces.
type Device struct {
	ID                 int    // Unique device identifier
	Name               string // Human-readable device name
	TotalMem           uint64 // Device memory budget in bytes
	NumCores           int    // Number of CPU cores
	Workers            int    // Goroutines used to schedule blocks
	MaxThreadsPerBlock int
	SharedMemPerBlock  int // Bytes of shared memory per block
	Features           string
}

// Context is an execution context. It owns the device memory pool and the
// streams kernels are submitted to. Create one with NewContext and release
// it with Destroy.
type Context struct {
	device        *Device
	mu            sync.Mutex
	streams       map[int]*Stream
	streamID      int32
	memory        *MemoryPool
	defaultStream *Stream
	workers       int
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithWorkers sets the number of goroutines that execute blocks of a grid.
// Values below one select runtime.NumCPU().
func WithWorkers(n int) ContextOption {
	return func(ctx *Context) {
		if n > 0 {
			ctx.workers = n
		}
	}
}

// WithMemoryLimit caps the bytes the context may hold in device memory.
// Zero means the physical memory of the host.
func WithMemoryLimit(bytes int64) ContextOption {
	return func(ctx *Context) {
		if bytes > 0 {
			ctx.memory.limit = bytes
		}
	}
}

// Dim3 represents 3D dimensions for grid and block configurations.
// This matches CUDA's dim3 structure for kernel launch parameters.
type Dim3 struct {
	X, Y, Z int
}

// ThreadID identifies a thread's position within the execution hierarchy.
// It provides the same indexing semantics as CUDA's built-in variables:
// blockIdx, threadIdx, blockDim, and gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Block index within the grid
	ThreadIdx Dim3 // Thread index within the block
	BlockDim  Dim3 // Dimensions of the block
	GridDim   Dim3 // Dimensions of the grid
}

// Kernel is executed once per thread of a launch. Execute is called
// concurrently for threads of different blocks.
type Kernel interface {
	Execute(tid ThreadID)
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func(tid ThreadID)

// Execute calls fn(tid).
func (fn KernelFunc) Execute(tid ThreadID) {
	fn(tid)
}

// CooperativeKernel is a kernel whose threads cooperate through the shared
// memory and the barrier of their block. Every thread of a block runs on
// its own goroutine.
type CooperativeKernel interface {
	Execute(tid ThreadID, blk *Block)
}

// CooperativeKernelFunc adapts a function to the CooperativeKernel interface.
type CooperativeKernelFunc func(tid ThreadID, blk *Block)

// Execute calls fn(tid, blk).
func (fn CooperativeKernelFunc) Execute(tid ThreadID, blk *Block) {
	fn(tid, blk)
}

var (
	defaultContext *Context
	initOnce       sync.Once
)

func init() {
	initOnce.Do(func() {
		defaultContext = NewContext()
	})
}

// NewContext creates a context with its default stream running.
func NewContext(opts ...ContextOption) *Context {
	ctx := &Context{
		streams: make(map[int]*Stream),
		memory:  NewMemoryPool(0),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.memory.limit == 0 {
		ctx.memory.limit = int64(getSystemMemory())
	}
	ctx.device = &Device{
		ID:                 0,
		Name:               "CPU",
		TotalMem:           uint64(ctx.memory.limit),
		NumCores:           runtime.NumCPU(),
		Workers:            ctx.workers,
		MaxThreadsPerBlock: MaxThreadsPerBlock,
		SharedMemPerBlock:  MaxSharedMemoryPerBlock,
		Features:           GetCPUInfo(),
	}
	ctx.defaultStream = ctx.CreateStream()
	return ctx
}

// DefaultContext returns the context used by the package-level functions.
func DefaultContext() *Context {
	return defaultContext
}

// Malloc allocates device memory of the specified size in bytes on the
// default context.
//
// Example:
//
//	d_data, err := gudamm.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gudamm.Free(d_data)
func Malloc(size int) (DevicePtr, error) {
	return defaultContext.Malloc(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero-value DevicePtr.
func Free(ptr DevicePtr) error {
	return defaultContext.Free(ptr)
}

// Memcpy copies memory between host and device on the default context.
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	return defaultContext.Memcpy(dst, src, size, kind)
}

// Launch submits a kernel to the default stream of the default context.
func Launch(kernel Kernel, grid, block Dim3) error {
	return defaultContext.Launch(kernel, grid, block)
}

// LaunchFunc submits a kernel function to the default stream.
func LaunchFunc(fn KernelFunc, grid, block Dim3) error {
	return defaultContext.Launch(fn, grid, block)
}

// LaunchCooperative submits a cooperative kernel with sharedMem bytes of
// shared memory per block to the default stream.
func LaunchCooperative(kernel CooperativeKernel, grid, block Dim3, sharedMem int) error {
	return defaultContext.LaunchCooperative(kernel, grid, block, sharedMem)
}

// Synchronize waits for all work submitted to the default context and
// returns the first kernel failure, if any.
func Synchronize() error {
	return defaultContext.Synchronize()
}

// GetDevice returns the device of the default context.
//
// Example:
//
//	device := gudamm.GetDevice()
//	fmt.Printf("Running on: %s with %d cores\n", device.Name, device.NumCores)
func GetDevice() *Device {
	return defaultContext.device
}

// SetDevice sets the active device (no-op for CPU)
func SetDevice(id int) error {
	if id != 0 {
		return ErrInvalidDevice
	}
	return nil
}

// GetDeviceCount returns the number of available devices, always 1.
func GetDeviceCount() int {
	return 1
}

// GetDeviceProperties returns device properties
func GetDeviceProperties(id int) (*Device, error) {
	if id != 0 {
		return nil, NewInvalidArgError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return defaultContext.device, nil
}

// Context methods

// Device returns the device this context executes on.
func (ctx *Context) Device() *Device {
	return ctx.device
}

// CreateStream creates a new execution stream
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := newStream(id)
	ctx.mu.Lock()
	ctx.streams[id] = stream
	ctx.mu.Unlock()
	return stream
}

// Launch executes a kernel on the default stream
func (ctx *Context) Launch(kernel Kernel, grid, block Dim3) error {
	return ctx.LaunchStream(kernel, grid, block, ctx.defaultStream)
}

// LaunchStream executes a kernel on a specific stream
func (ctx *Context) LaunchStream(kernel Kernel, grid, block Dim3, stream *Stream) error {
	return ctx.launchInternal(kernel, grid, block, stream)
}

// LaunchCooperative executes a cooperative kernel on the default stream
func (ctx *Context) LaunchCooperative(kernel CooperativeKernel, grid, block Dim3, sharedMem int) error {
	return ctx.LaunchCooperativeStream(kernel, grid, block, sharedMem, ctx.defaultStream)
}

// LaunchCooperativeStream executes a cooperative kernel on a specific stream
func (ctx *Context) LaunchCooperativeStream(kernel CooperativeKernel, grid, block Dim3, sharedMem int, stream *Stream) error {
	return ctx.launchCooperative(kernel, grid, block, sharedMem, stream)
}

// Synchronize waits for all streams to complete and reports their failures.
func (ctx *Context) Synchronize() error {
	ctx.mu.Lock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, stream := range ctx.streams {
		streams = append(streams, stream)
	}
	ctx.mu.Unlock()

	var err error
	for _, stream := range streams {
		err = multierr.Append(err, stream.Synchronize())
	}
	return err
}

// Destroy waits for outstanding work and stops every stream of the context.
// Work launched afterwards is rejected and reported by Synchronize. Device
// memory still held by the caller stays valid until freed.
func (ctx *Context) Destroy() {
	_ = ctx.Synchronize()
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for _, stream := range ctx.streams {
		stream.close()
	}
}

// Helper functions

// Global returns the global thread index
func (tid ThreadID) Global() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalX returns the global X index
func (tid ThreadID) GlobalX() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalY returns the global Y index
func (tid ThreadID) GlobalY() int {
	return tid.BlockIdx.Y*tid.BlockDim.Y + tid.ThreadIdx.Y
}

// GlobalZ returns the global Z index
func (tid ThreadID) GlobalZ() int {
	return tid.BlockIdx.Z*tid.BlockDim.Z + tid.ThreadIdx.Z
}

// Size returns the total number of elements
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", d.X, d.Y, d.Z)
}
