// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gudamm multiplies dense single-precision matrices on a
// CUDA-style device that executes on the CPU.
//
// The runtime half of the package mirrors the CUDA programming model:
// a Context owns device memory (Malloc, Free, Memcpy) and streams, and
// kernels are launched over a grid of blocks, each block holding a fixed
// number of threads. Cooperative launches give every block its own
// shared scratch memory and a block-scoped barrier (Block.SyncThreads).
//
// The matrix half builds on that runtime. Multiply validates the operands,
// moves them to the device, launches either the naive per-element kernel
// or the tiled shared-memory kernel, waits for completion and copies the
// product back:
//
//	a, _ := gudamm.NewMatrixFromRows([][]float32{{1, 2}, {3, 4}})
//	b, _ := gudamm.NewMatrixFromRows([][]float32{{5, 6}, {7, 8}})
//	c, err := gudamm.Multiply(a, b, gudamm.Tiled)
//	// c = [[19 22] [43 50]]
package gudamm
