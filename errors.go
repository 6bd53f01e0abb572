// Package gudamm structured error types for better error handling
package gudamm

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Memory errors
	ErrTypeMemory ErrorType = iota
	// Invalid argument errors
	ErrTypeInvalidArg
	// Execution errors
	ErrTypeExecution
	// Launch configuration errors
	ErrTypeLaunch
	// Device errors
	ErrTypeDevice
	// Operand shapes disagree on the contraction dimension
	ErrTypeDimensionMismatch
	// A device step of a multiplication failed
	ErrTypeDeviceOperation
)

// GUDAError represents a structured error with context
type GUDAError struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context
}

// Error implements the error interface
func (e *GUDAError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GUDA %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("GUDA %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *GUDAError) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeLaunch:
		return "Launch"
	case ErrTypeDevice:
		return "Device"
	case ErrTypeDimensionMismatch:
		return "DimensionMismatch"
	case ErrTypeDeviceOperation:
		return "DeviceOperationFailed"
	default:
		return "Unknown"
	}
}

// Shape records the operand dimensions of a rejected multiplication.
type Shape struct {
	ARows, AColumns int
	BRows, BColumns int
}

// Common error constructors

// NewMemoryError creates a memory-related error
func NewMemoryError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeExecution,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewLaunchError creates a launch configuration error
func NewLaunchError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeLaunch,
		Op:      op,
		Message: message,
	}
}

// NewDimensionMismatchError reports A.columns != B.rows.
func NewDimensionMismatchError(op string, aRows, aCols, bRows, bCols int) error {
	return &GUDAError{
		Type: ErrTypeDimensionMismatch,
		Op:   op,
		Message: fmt.Sprintf("cannot multiply %dx%d by %dx%d: %d columns != %d rows",
			aRows, aCols, bRows, bCols, aCols, bRows),
		Context: Shape{ARows: aRows, AColumns: aCols, BRows: bRows, BColumns: bCols},
	}
}

// NewDeviceOperationError wraps the diagnostic of a failed allocation,
// transfer, launch or release.
func NewDeviceOperationError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeDeviceOperation,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Common pre-defined errors

var (
	// ErrOutOfMemory indicates memory allocation failure
	ErrOutOfMemory = NewMemoryError("Malloc", "out of memory", nil)

	// ErrInvalidSize indicates invalid size parameter
	ErrInvalidSize = NewInvalidArgError("Malloc", "size must be positive")

	// ErrInvalidPointer indicates a pointer that is not a live allocation
	ErrInvalidPointer = NewInvalidArgError("Memory", "invalid device pointer")

	// ErrDoubleFree indicates double free attempt
	ErrDoubleFree = NewMemoryError("Free", "double free detected", nil)

	// ErrInvalidDevice indicates invalid device ID
	ErrInvalidDevice = NewInvalidArgError("SetDevice", "invalid device ID")

	// ErrStreamDestroyed indicates work submitted to a destroyed context
	ErrStreamDestroyed = &GUDAError{Type: ErrTypeDevice, Op: "Submit", Message: "stream destroyed"}
)

func errorType(err error) (ErrorType, bool) {
	var e *GUDAError
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// kindTarget matches any GUDAError of the same type in errors.Is.
type kindTarget ErrorType

func (k kindTarget) Error() string {
	return ErrorType(k).String()
}

// Is reports whether target names this error's type, so predicates see
// causes wrapped by other GUDA errors.
func (e *GUDAError) Is(target error) bool {
	k, ok := target.(kindTarget)
	return ok && ErrorType(k) == e.Type
}

func hasType(err error, t ErrorType) bool {
	return errors.Is(err, kindTarget(t))
}

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	return hasType(err, ErrTypeMemory)
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	return hasType(err, ErrTypeInvalidArg)
}

// IsExecutionError checks if an error is a kernel execution error
func IsExecutionError(err error) bool {
	return hasType(err, ErrTypeExecution)
}

// IsLaunchError checks if an error is a launch configuration error
func IsLaunchError(err error) bool {
	return hasType(err, ErrTypeLaunch)
}

// IsDeviceError checks if an error is a device error
func IsDeviceError(err error) bool {
	return hasType(err, ErrTypeDevice)
}

// IsDimensionMismatch checks if a multiplication was rejected because the
// contraction dimensions disagree.
func IsDimensionMismatch(err error) bool {
	return hasType(err, ErrTypeDimensionMismatch)
}

// IsDeviceOperationFailed checks if a multiplication failed on the device.
func IsDeviceOperationFailed(err error) bool {
	return hasType(err, ErrTypeDeviceOperation)
}
