package gudamm

import (
	"fmt"
	"strings"
	"time"

	"github.com/LynnColeArt/gudamm/internal/log"
	"github.com/juju/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Strategy selects the kernel used by Multiply.
type Strategy int

const (
	// Naive computes every element of C with its own dot product against
	// device memory.
	Naive Strategy = iota
	// Tiled stages tiles of A and B in shared memory.
	Tiled
)

func (s Strategy) String() string {
	switch s {
	case Naive:
		return "naive"
	case Tiled:
		return "tiled"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts "naive" or "tiled" (any case) to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "naive":
		return Naive, nil
	case "tiled":
		return Tiled, nil
	default:
		return 0, errors.NotValidf("strategy %q", name)
	}
}

// Runtime is the part of a device context the multiplier drives.
// *Context implements it.
type Runtime interface {
	Malloc(size int) (DevicePtr, error)
	Free(ptr DevicePtr) error
	Memcpy(dst, src interface{}, size int, kind MemcpyKind) error
	Launch(kernel Kernel, grid, block Dim3) error
	LaunchCooperative(kernel CooperativeKernel, grid, block Dim3, sharedMem int) error
	Synchronize() error
}

// Multiplier computes matrix products on a device. It holds no per-call
// state, so sequential calls never share device buffers.
type Multiplier struct {
	runtime   Runtime
	tileWidth int
	logger    *zap.Logger
}

// Option configures a Multiplier.
type Option func(*Multiplier)

// WithTileWidth sets the edge of the square thread blocks and shared
// memory tiles. Wider tiles cut device memory reads but need tileWidth²
// threads and 8·tileWidth² bytes of shared memory per block; widths beyond
// the device limits fail at launch.
func WithTileWidth(tileWidth int) Option {
	return func(m *Multiplier) {
		m.tileWidth = tileWidth
	}
}

// WithLogger overrides the package logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Multiplier) {
		m.logger = logger
	}
}

// NewMultiplier creates a multiplier on runtime with DefaultTileWidth.
func NewMultiplier(runtime Runtime, opts ...Option) *Multiplier {
	m := &Multiplier{
		runtime:   runtime,
		tileWidth: DefaultTileWidth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TileWidth returns the configured tile width.
func (m *Multiplier) TileWidth() int {
	return m.tileWidth
}

func (m *Multiplier) log() *zap.Logger {
	if m.logger != nil {
		return m.logger
	}
	return log.Logger()
}

// Multiply computes C = A·B on the default context.
func Multiply(a, b *Matrix, strategy Strategy) (*Matrix, error) {
	return NewMultiplier(defaultContext).Multiply(a, b, strategy)
}

// Multiply computes C = A·B with the given strategy and blocks until the
// product is back in host memory.
//
// Operands whose shapes disagree are rejected with a dimension mismatch
// error before any device memory is touched. Failed allocations, copies,
// launches and kernel executions are reported as device operation
// failures. Device buffers acquired by the call are released before it
// returns, whether it succeeds or not.
func (m *Multiplier) Multiply(a, b *Matrix, strategy Strategy) (c *Matrix, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			MultiplyFailuresTotal.WithLabelValues(failureReason(err)).Inc()
			m.log().Error("matrix multiplication failed",
				zap.Stringer("strategy", strategy), zap.Error(err))
			return
		}
		MultiplySeconds.WithLabelValues(strategy.String()).Observe(time.Since(start).Seconds())
	}()

	if err = a.Validate(); err != nil {
		return nil, errors.Annotate(err, "operand A")
	}
	if err = b.Validate(); err != nil {
		return nil, errors.Annotate(err, "operand B")
	}
	shape := Shape{ARows: a.Rows, AColumns: a.Columns, BRows: b.Rows, BColumns: b.Columns}
	if err = shape.Validate("Multiply"); err != nil {
		return nil, err
	}
	if strategy != Naive && strategy != Tiled {
		return nil, NewInvalidArgError("Multiply", fmt.Sprintf("unknown strategy %v", strategy))
	}

	c = NewMatrix(a.Rows, b.Columns)
	geometry := NewLaunchGeometry(c.Rows, c.Columns, m.tileWidth)
	m.log().Debug("multiplying matrices",
		zap.String("a", fmt.Sprintf("%dx%d", a.Rows, a.Columns)),
		zap.String("b", fmt.Sprintf("%dx%d", b.Rows, b.Columns)),
		zap.String("c", fmt.Sprintf("%dx%d", c.Rows, c.Columns)),
		zap.Stringer("strategy", strategy),
		zap.Stringer("grid", geometry.Grid),
		zap.Stringer("block", geometry.Block))

	phases := make([]zap.Field, 0, 4)
	phaseStart := time.Now()
	lap := func(phase string) {
		now := time.Now()
		phases = append(phases, zap.Duration(phase, now.Sub(phaseStart)))
		phaseStart = now
	}

	var buffers []DevicePtr
	defer func() {
		for _, ptr := range buffers {
			if freeErr := m.runtime.Free(ptr); freeErr != nil {
				err = multierr.Append(err, NewDeviceOperationError("Free", "failed to release device buffer", freeErr))
			}
		}
		if err != nil {
			c = nil
		}
	}()
	malloc := func(name string, size int) (DevicePtr, error) {
		ptr, err := m.runtime.Malloc(size)
		if err != nil {
			return DevicePtr{}, NewDeviceOperationError("Malloc",
				fmt.Sprintf("failed to allocate %d bytes for %s", size, name), err)
		}
		buffers = append(buffers, ptr)
		return ptr, nil
	}

	deviceA, err := malloc("A", a.Bytes())
	if err != nil {
		return nil, err
	}
	deviceB, err := malloc("B", b.Bytes())
	if err != nil {
		return nil, err
	}
	deviceC, err := malloc("C", c.Bytes())
	if err != nil {
		return nil, err
	}
	lap("allocate")

	if err = m.runtime.Memcpy(deviceA, a.Data, a.Bytes(), MemcpyHostToDevice); err != nil {
		return nil, NewDeviceOperationError("Memcpy", "failed to copy A to the device", err)
	}
	if err = m.runtime.Memcpy(deviceB, b.Data, b.Bytes(), MemcpyHostToDevice); err != nil {
		return nil, NewDeviceOperationError("Memcpy", "failed to copy B to the device", err)
	}
	lap("copy_in")

	if err = m.launch(strategy, deviceA, deviceB, deviceC, shape, geometry); err != nil {
		return nil, NewDeviceOperationError("Launch", fmt.Sprintf("failed to launch the %s kernel", strategy), err)
	}
	if err = m.runtime.Synchronize(); err != nil {
		return nil, NewDeviceOperationError("Synchronize", fmt.Sprintf("the %s kernel failed", strategy), err)
	}
	lap("compute")

	if err = m.runtime.Memcpy(c.Data, deviceC, c.Bytes(), MemcpyDeviceToHost); err != nil {
		return nil, NewDeviceOperationError("Memcpy", "failed to copy C to the host", err)
	}
	lap("copy_out")
	m.log().Debug("matrix multiplication phases", append(phases, zap.Stringer("strategy", strategy))...)
	return c, nil
}

func (m *Multiplier) launch(strategy Strategy, a, b, c DevicePtr, shape Shape, geometry LaunchGeometry) error {
	switch strategy {
	case Naive:
		kernel, err := NewNaiveKernel(a, b, c, shape)
		if err != nil {
			return err
		}
		return m.runtime.Launch(kernel, geometry.Grid, geometry.Block)
	case Tiled:
		kernel, err := NewTiledKernel(a, b, c, shape, geometry.TileWidth)
		if err != nil {
			return err
		}
		return m.runtime.LaunchCooperative(kernel, geometry.Grid, geometry.Block, geometry.SharedMemBytes())
	default:
		return NewInvalidArgError("Multiply", fmt.Sprintf("unknown strategy %v", strategy))
	}
}

func failureReason(err error) string {
	if t, ok := errorType(err); ok {
		return t.String()
	}
	return "Unknown"
}
