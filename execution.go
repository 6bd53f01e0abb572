package gudamm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// launchInternal validates the launch and submits it to stream. Threads of
// a block run sequentially on one goroutine, which maximizes cache reuse
// for kernels that never synchronize.
func (ctx *Context) launchInternal(kernel Kernel, grid, block Dim3, stream *Stream) error {
	grid, block, err := validateLaunch("Launch", grid, block, 0)
	if err != nil {
		return err
	}
	KernelLaunchesTotal.WithLabelValues(kernelName(kernel)).Inc()
	stream.Submit(func() error {
		return ctx.forEachBlock(grid, func(blockIdx Dim3) error {
			return runBlock(kernel, blockIdx, grid, block)
		})
	})
	return nil
}

// launchCooperative validates the launch and submits it to stream. Each
// block gets sharedMem bytes of shared memory and one goroutine per thread.
func (ctx *Context) launchCooperative(kernel CooperativeKernel, grid, block Dim3, sharedMem int, stream *Stream) error {
	grid, block, err := validateLaunch("LaunchCooperative", grid, block, sharedMem)
	if err != nil {
		return err
	}
	KernelLaunchesTotal.WithLabelValues(kernelName(kernel)).Inc()
	stream.Submit(func() error {
		return ctx.forEachBlock(grid, func(blockIdx Dim3) error {
			return runCooperativeBlock(kernel, blockIdx, grid, block, sharedMem)
		})
	})
	return nil
}

// validateLaunch rejects configurations a CUDA device would refuse. Zero Y
// and Z extents default to 1 like dim3.
func validateLaunch(op string, grid, block Dim3, sharedMem int) (Dim3, Dim3, error) {
	grid, block = grid.withDefaults(), block.withDefaults()
	if grid.X < 1 || grid.Y < 1 || grid.Z < 1 {
		return grid, block, NewLaunchError(op, fmt.Sprintf("invalid grid dimensions %v", grid))
	}
	if block.X < 1 || block.Y < 1 || block.Z < 1 {
		return grid, block, NewLaunchError(op, fmt.Sprintf("invalid block dimensions %v", block))
	}
	if block.Size() > MaxThreadsPerBlock {
		return grid, block, NewLaunchError(op, fmt.Sprintf(
			"block of %d threads exceeds the limit of %d", block.Size(), MaxThreadsPerBlock))
	}
	if sharedMem < 0 || sharedMem > MaxSharedMemoryPerBlock {
		return grid, block, NewLaunchError(op, fmt.Sprintf(
			"%d bytes of shared memory requested, limit is %d", sharedMem, MaxSharedMemoryPerBlock))
	}
	return grid, block, nil
}

func (d Dim3) withDefaults() Dim3 {
	if d.Y == 0 {
		d.Y = 1
	}
	if d.Z == 0 {
		d.Z = 1
	}
	return d
}

// forEachBlock runs fn for every block of grid. Each worker processes a
// contiguous range of blocks to maximize cache reuse; blocks carry no
// ordering guarantee relative to each other. The first error stops the
// remaining blocks.
func (ctx *Context) forEachBlock(grid Dim3, fn func(blockIdx Dim3) error) error {
	gridSize := grid.Size()
	numWorkers := min(ctx.workers, gridSize)
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	g, gctx := errgroup.WithContext(context.Background())
	for workerID := 0; workerID < numWorkers; workerID++ {
		startBlock := workerID * blocksPerWorker
		endBlock := min(startBlock+blocksPerWorker, gridSize)
		g.Go(func() error {
			for blockID := startBlock; blockID < endBlock; blockID++ {
				if gctx.Err() != nil {
					return nil
				}
				if err := fn(linearTo3D(blockID, grid)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runBlock executes every thread of one block in order.
func runBlock(kernel Kernel, blockIdx, grid, block Dim3) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewExecutionError("Launch", fmt.Sprintf("%s panicked in block %v: %v",
				kernelName(kernel), blockIdx, r), nil)
		}
	}()
	blockSize := block.Size()
	for threadID := 0; threadID < blockSize; threadID++ {
		kernel.Execute(ThreadID{
			BlockIdx:  blockIdx,
			ThreadIdx: linearTo3D(threadID, block),
			BlockDim:  block,
			GridDim:   grid,
		})
	}
	return nil
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}

// kernelName labels launches in metrics and errors.
func kernelName(kernel interface{}) string {
	if named, ok := kernel.(interface{ Name() string }); ok {
		return named.Name()
	}
	switch kernel.(type) {
	case KernelFunc, CooperativeKernelFunc:
		return "func"
	}
	return fmt.Sprintf("%T", kernel)
}
