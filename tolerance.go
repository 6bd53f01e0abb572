// Package gudamm tolerance-based verification for floating-point comparisons
package gudamm

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// ToleranceConfig defines tolerance parameters for floating-point comparison
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float32

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float32

	// ULPTol is the maximum allowed difference in ULPs (Units in Last Place)
	ULPTol int

	// CheckNaN determines if NaN values should be considered equal
	CheckNaN bool

	// CheckInf determines if Inf values should be considered equal
	CheckInf bool
}

// DefaultTolerance returns default tolerance configuration
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-7,
		RelTol:   1e-5,
		ULPTol:   4,
		CheckNaN: true,
		CheckInf: true,
	}
}

// StrictTolerance returns strict tolerance configuration for high precision
func StrictTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-9,
		RelTol:   1e-7,
		ULPTol:   1,
		CheckNaN: true,
		CheckInf: true,
	}
}

// RelaxedTolerance returns relaxed tolerance for long dot products, whose
// rounding depends on the summation order.
func RelaxedTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-5,
		RelTol:   1e-3,
		ULPTol:   16,
		CheckNaN: true,
		CheckInf: true,
	}
}

// Float32NearEqual checks if two float32 values are equal within tolerance
func Float32NearEqual(a, b float32, tol ToleranceConfig) bool {
	if tol.CheckNaN && math32.IsNaN(a) && math32.IsNaN(b) {
		return true
	}
	if tol.CheckInf {
		if math32.IsInf(a, 1) && math32.IsInf(b, 1) {
			return true
		}
		if math32.IsInf(a, -1) && math32.IsInf(b, -1) {
			return true
		}
	}
	// non-finite values only match through the checks above
	if math32.IsInf(a, 0) || math32.IsInf(b, 0) || math32.IsNaN(a) || math32.IsNaN(b) {
		return false
	}

	// handles ±0
	if a == b {
		return true
	}

	diff := math32.Abs(a - b)
	if diff <= tol.AbsTol {
		return true
	}
	if diff <= math32.Max(math32.Abs(a), math32.Abs(b))*tol.RelTol {
		return true
	}
	if tol.ULPTol > 0 && Float32ULPDiff(a, b) <= tol.ULPTol {
		return true
	}
	return false
}

// Float32ULPDiff computes the difference in ULPs between two float32 values.
// Values of opposite sign are reported as math.MaxInt32 apart.
func Float32ULPDiff(a, b float32) int {
	aBits := math32.Float32bits(a)
	bBits := math32.Float32bits(b)

	if (aBits^bBits)&0x80000000 != 0 {
		return math.MaxInt32
	}
	if aBits > bBits {
		return int(aBits - bBits)
	}
	return int(bBits - aBits)
}

// VerificationResult summarizes an element-wise comparison.
type VerificationResult struct {
	MaxAbsError float32
	MaxRelError float32
	MaxULPError int
	NumErrors   int
	TotalItems  int
	FirstError  int  // Index of first error, -1 if none
	LengthDiff  bool // the arrays differ in length, nothing was compared
}

// VerifyFloat32Array compares two float32 arrays and returns detailed results
func VerifyFloat32Array(expected, actual []float32, tol ToleranceConfig) VerificationResult {
	result := VerificationResult{
		TotalItems: len(expected),
		FirstError: -1,
	}

	if len(expected) != len(actual) {
		result.NumErrors = len(expected)
		result.LengthDiff = true
		return result
	}

	for i := range expected {
		if Float32NearEqual(expected[i], actual[i], tol) {
			continue
		}
		result.NumErrors++
		if result.FirstError == -1 {
			result.FirstError = i
		}

		absDiff := math32.Abs(expected[i] - actual[i])
		if absDiff > result.MaxAbsError {
			result.MaxAbsError = absDiff
		}
		if expected[i] != 0 {
			relDiff := absDiff / math32.Abs(expected[i])
			if relDiff > result.MaxRelError {
				result.MaxRelError = relDiff
			}
		}
		if ulpDiff := Float32ULPDiff(expected[i], actual[i]); ulpDiff > result.MaxULPError {
			result.MaxULPError = ulpDiff
		}
	}

	return result
}

// VerifyMatrix compares actual against expected element by element. It
// fails when the shapes differ, and reports the comparison otherwise.
func VerifyMatrix(expected, actual *Matrix, tol ToleranceConfig) (VerificationResult, error) {
	if err := expected.Validate(); err != nil {
		return VerificationResult{}, err
	}
	if err := actual.Validate(); err != nil {
		return VerificationResult{}, err
	}
	if expected.Rows != actual.Rows || expected.Columns != actual.Columns {
		return VerificationResult{}, NewInvalidArgError("VerifyMatrix", fmt.Sprintf(
			"expected a %dx%d matrix, got %dx%d", expected.Rows, expected.Columns, actual.Rows, actual.Columns))
	}
	return VerifyFloat32Array(expected.Data, actual.Data, tol), nil
}

// IsAcceptable returns true if the verification result is within tolerance
func (r VerificationResult) IsAcceptable(tol ToleranceConfig) bool {
	if r.LengthDiff {
		return false
	}
	return r.NumErrors == 0 ||
		(r.MaxAbsError <= tol.AbsTol &&
			r.MaxRelError <= tol.RelTol &&
			r.MaxULPError <= tol.ULPTol)
}

// String formats the verification result for display
func (r VerificationResult) String() string {
	if r.LengthDiff {
		return fmt.Sprintf("FAIL: expected %d values, lengths differ", r.TotalItems)
	}
	if r.NumErrors == 0 {
		return "PASS: All values match within tolerance"
	}

	errorRate := float64(r.NumErrors) / float64(r.TotalItems) * 100
	return fmt.Sprintf("FAIL: %d/%d values differ (%.2f%%)\n"+
		"  Max absolute error: %e\n"+
		"  Max relative error: %e\n"+
		"  Max ULP difference: %d\n"+
		"  First error at index: %d",
		r.NumErrors, r.TotalItems, errorRate,
		r.MaxAbsError, r.MaxRelError, r.MaxULPError,
		r.FirstError)
}
