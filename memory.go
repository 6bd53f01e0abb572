package gudamm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// MemcpyKind specifies the direction of memory transfer.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "host_to_host"
	case MemcpyHostToDevice:
		return "host_to_device"
	case MemcpyDeviceToHost:
		return "device_to_host"
	case MemcpyDeviceToDevice:
		return "device_to_device"
	case MemcpyDefault:
		return "default"
	default:
		return "unknown"
	}
}

// MemoryPool manages device memory allocation with efficient reuse.
// It maintains a free list of previously allocated blocks to reduce
// allocation overhead, and refuses allocations beyond its limit.
type MemoryPool struct {
	mu         sync.Mutex
	allocated  map[*allocation]struct{}
	freeList   []*allocation
	limit      int64
	reserved   int64 // bytes held by live and free-listed allocations
	totalAlloc int64 // bytes held by live allocations
	peakAlloc  int64
	live       int
}

type allocation struct {
	buf  []byte
	gen  atomic.Uint64
	used atomic.Bool
}

// MemoryStats is a snapshot of pool usage.
type MemoryStats struct {
	Allocated int64 // bytes held by live allocations
	Peak      int64
	Reserved  int64 // bytes held including the free list
	Live      int   // number of live allocations
	Limit     int64
}

// NewMemoryPool creates a pool holding at most limit bytes. A limit of
// zero disables the check.
func NewMemoryPool(limit int64) *MemoryPool {
	return &MemoryPool{
		allocated: make(map[*allocation]struct{}),
		limit:     limit,
	}
}

// Malloc allocates device memory of the specified size in bytes.
//
// Example:
//
//	ptr, err := ctx.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//		return err
//	}
//	defer ctx.Free(ptr)
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	return ctx.memory.Allocate(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero DevicePtr.
// The memory may be retained in the pool for future allocations.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.memory.Free(ptr)
}

// MemoryStats reports the usage of the context's memory pool.
func (ctx *Context) MemoryStats() MemoryStats {
	return ctx.memory.Stats()
}

// Memcpy copies size bytes between host and device. dst and src may be a
// DevicePtr or a []byte, []float32, []float64 or []int32 host slice; the
// operand kinds must agree with kind unless kind is MemcpyDefault.
//
// Example:
//
//	h_data := make([]float32, 1024)
//	d_data, _ := ctx.Malloc(1024 * 4)
//	ctx.Memcpy(d_data, h_data, 1024*4, gudamm.MemcpyHostToDevice)
func (ctx *Context) Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	if size < 0 {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("negative size: %d", size))
	}
	_, dstIsDevice := dst.(DevicePtr)
	_, srcIsDevice := src.(DevicePtr)
	if err := checkDirection(kind, dstIsDevice, srcIsDevice); err != nil {
		return err
	}
	dstBytes, err := bytesOf("Memcpy", dst)
	if err != nil {
		return err
	}
	srcBytes, err := bytesOf("Memcpy", src)
	if err != nil {
		return err
	}
	if size > len(dstBytes) || size > len(srcBytes) {
		return NewMemoryError("Memcpy", fmt.Sprintf(
			"copy of %d bytes overruns buffers (dst %d bytes, src %d bytes)",
			size, len(dstBytes), len(srcBytes)), nil)
	}
	copy(dstBytes[:size], srcBytes[:size])
	MemcpyBytesTotal.WithLabelValues(kind.String()).Add(float64(size))
	return nil
}

func checkDirection(kind MemcpyKind, dstIsDevice, srcIsDevice bool) error {
	var wantDst, wantSrc bool
	switch kind {
	case MemcpyDefault:
		return nil
	case MemcpyHostToHost:
	case MemcpyHostToDevice:
		wantDst = true
	case MemcpyDeviceToHost:
		wantSrc = true
	case MemcpyDeviceToDevice:
		wantDst, wantSrc = true, true
	default:
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unknown memcpy kind: %d", kind))
	}
	if dstIsDevice != wantDst || srcIsDevice != wantSrc {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("operands do not match direction %s", kind))
	}
	return nil
}

// bytesOf returns a byte view of a device pointer or host slice.
func bytesOf(op string, v interface{}) ([]byte, error) {
	switch s := v.(type) {
	case DevicePtr:
		if !s.valid() {
			return nil, NewMemoryError(op, "device pointer is not a live allocation", ErrInvalidPointer)
		}
		return s.Byte(), nil
	case []byte:
		return s, nil
	case []float32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*4), nil
	case []float64:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*8), nil
	case []int32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*4), nil
	default:
		return nil, NewInvalidArgError(op, fmt.Sprintf("unsupported operand type: %T", v))
	}
}

// MemoryPool methods

// Allocate allocates memory from the pool
func (mp *MemoryPool) Allocate(size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	// Try to reuse from free list
	for i, alloc := range mp.freeList {
		if len(alloc.buf) >= alignedSize {
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			return mp.handOut(alloc, size), nil
		}
	}

	// Release cached blocks until the new one fits.
	for mp.limit > 0 && mp.reserved+int64(alignedSize) > mp.limit && len(mp.freeList) > 0 {
		victim := mp.freeList[0]
		mp.freeList = mp.freeList[1:]
		delete(mp.allocated, victim)
		mp.reserved -= int64(len(victim.buf))
	}
	if mp.limit > 0 && mp.reserved+int64(alignedSize) > mp.limit {
		return DevicePtr{}, NewMemoryError("Malloc", fmt.Sprintf(
			"cannot allocate %d bytes: %d of %d bytes in use", size, mp.reserved, mp.limit), ErrOutOfMemory)
	}

	alloc := &allocation{buf: make([]byte, alignedSize)}
	mp.allocated[alloc] = struct{}{}
	mp.reserved += int64(alignedSize)
	return mp.handOut(alloc, size), nil
}

// handOut marks alloc as used and updates tracking. Callers hold mp.mu.
func (mp *MemoryPool) handOut(alloc *allocation, size int) DevicePtr {
	gen := alloc.gen.Add(1)
	alloc.used.Store(true)
	mp.live++
	mp.totalAlloc += int64(len(alloc.buf))
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
	DeviceAllocationsTotal.Inc()
	DeviceMemoryInUseBytes.Add(float64(len(alloc.buf)))
	return DevicePtr{alloc: alloc, gen: gen, size: size}
}

// Free returns memory to the pool
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.alloc == nil {
		return nil
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc := ptr.alloc
	if _, ok := mp.allocated[alloc]; !ok {
		return NewMemoryError("Free", "pointer not found in allocation pool", ErrInvalidPointer)
	}
	if !alloc.used.Load() || alloc.gen.Load() != ptr.gen {
		return ErrDoubleFree
	}
	if ptr.offset != 0 {
		return NewMemoryError("Free", "pointer does not address the start of an allocation", ErrInvalidPointer)
	}

	alloc.used.Store(false)
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(len(alloc.buf))
	mp.live--
	DeviceMemoryInUseBytes.Sub(float64(len(alloc.buf)))
	return nil
}

// GetStats returns memory pool statistics
func (mp *MemoryPool) GetStats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Stats returns a snapshot of the pool.
func (mp *MemoryPool) Stats() MemoryStats {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return MemoryStats{
		Allocated: mp.totalAlloc,
		Peak:      mp.peakAlloc,
		Reserved:  mp.reserved,
		Live:      mp.live,
		Limit:     mp.limit,
	}
}

// DevicePtr represents a pointer to device memory. A DevicePtr stops being
// usable once the allocation it refers to is freed, even if the pool later
// hands the same block out again.
type DevicePtr struct {
	alloc  *allocation
	gen    uint64
	size   int
	offset int
}

func (d DevicePtr) valid() bool {
	return d.alloc != nil && d.alloc.used.Load() && d.alloc.gen.Load() == d.gen
}

// Float32 returns a float32 slice view of the device memory, or nil if
// the pointer is not live.
//
// Example:
//
//	d_data, _ := gudamm.Malloc(1024 * 4) // Allocate for 1024 float32s
//	data := d_data.Float32()
//	data[0] = 3.14 // Direct access
func (d DevicePtr) Float32() []float32 {
	if !d.valid() || d.size < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&d.alloc.buf[d.offset])), d.size/4)
}

// Byte returns a byte slice view of the device memory.
func (d DevicePtr) Byte() []byte {
	if !d.valid() {
		return nil
	}
	return d.alloc.buf[d.offset : d.offset+d.size : d.offset+d.size]
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// The returned DevicePtr shares the same underlying memory.
//
// Example:
//
//	d_array, _ := gudamm.Malloc(1024 * 4) // 1024 float32s
//	d_second_half := d_array.Offset(512 * 4) // Start at element 512
//	data := d_second_half.Float32() // Access second half
func (d DevicePtr) Offset(bytes int) DevicePtr {
	if bytes > d.size {
		bytes = d.size
	}
	return DevicePtr{
		alloc:  d.alloc,
		gen:    d.gen,
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}
