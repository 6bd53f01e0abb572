package gudamm

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
)

// Block is the state shared by the threads of one block during a
// cooperative launch: its shared memory and its barrier. A Block is never
// visible to threads of another block.
type Block struct {
	Idx     Dim3 // Index of the block within the grid
	Dim     Dim3 // Threads per block
	shared  []float32
	barrier *barrier
}

func newBlock(idx, dim Dim3, sharedMem int) *Block {
	return &Block{
		Idx:     idx,
		Dim:     dim,
		shared:  make([]float32, (sharedMem+3)/4),
		barrier: newBarrier(dim.Size()),
	}
}

// SharedFloat32 returns the block's shared memory as float32 words. The
// memory is zeroed when the block starts.
func (b *Block) SharedFloat32() []float32 {
	return b.shared
}

// SyncThreads waits until every running thread of the block has reached
// the same call, like __syncthreads. Threads that already returned from
// the kernel are not waited for.
func (b *Block) SyncThreads() {
	if !b.barrier.await() {
		panic(errBarrierAborted)
	}
}

// errBarrierAborted unwinds threads waiting on a barrier after a sibling
// thread panicked.
var errBarrierAborted = errors.New("barrier aborted")

// barrier is a reusable block-scoped barrier.
type barrier struct {
	mu      sync.Mutex
	cond    sync.Cond
	parties int
	waiting int
	gen     uint64
	aborted bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond.L = &b.mu
	return b
}

// await blocks until all parties arrive. It reports false if the barrier
// was aborted before the generation completed.
func (b *barrier) await() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return false
	}
	b.waiting++
	if b.waiting == b.parties {
		b.trip()
		return true
	}
	gen := b.gen
	for gen == b.gen && !b.aborted {
		b.cond.Wait()
	}
	return gen != b.gen
}

// leave removes a finished thread from the barrier.
func (b *barrier) leave() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parties--
	if b.waiting > 0 && b.waiting == b.parties {
		b.trip()
	}
}

func (b *barrier) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = true
	b.cond.Broadcast()
}

func (b *barrier) trip() {
	b.waiting = 0
	b.gen++
	b.cond.Broadcast()
}

// runCooperativeBlock runs the threads of one block concurrently. A panic
// in any thread aborts the barrier so its siblings unwind, and is reported
// as an execution error.
func runCooperativeBlock(kernel CooperativeKernel, blockIdx, grid, block Dim3, sharedMem int) error {
	blk := newBlock(blockIdx, block, sharedMem)
	blockSize := block.Size()

	var (
		wg   sync.WaitGroup
		once sync.Once
		err  error
	)
	wg.Add(blockSize)
	for threadID := 0; threadID < blockSize; threadID++ {
		tid := ThreadID{
			BlockIdx:  blockIdx,
			ThreadIdx: linearTo3D(threadID, block),
			BlockDim:  block,
			GridDim:   grid,
		}
		go func() {
			defer wg.Done()
			defer blk.barrier.leave()
			defer func() {
				r := recover()
				if r == nil || r == errBarrierAborted {
					return
				}
				once.Do(func() {
					err = NewExecutionError("LaunchCooperative", fmt.Sprintf(
						"%s panicked in block %v thread %v: %v", kernelName(kernel), blockIdx, tid.ThreadIdx, r), nil)
				})
				blk.barrier.abort()
			}()
			kernel.Execute(tid, blk)
		}()
	}
	wg.Wait()
	return err
}
