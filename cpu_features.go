package gudamm

import (
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the instruction set extensions of the host, reported
// as part of the device description.
type CPUFeatures struct {
	HasSSE4    bool
	HasAVX     bool
	HasAVX2    bool
	HasFMA     bool
	HasAVX512F bool // Foundation
	HasASIMD   bool // arm64 Advanced SIMD
	HasSVE     bool
}

var cpuFeatures = detectCPUFeatures()

func detectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasFMA:     cpu.X86.HasFMA || cpu.ARM64.HasASIMD,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasASIMD:   cpu.ARM64.HasASIMD,
		HasSVE:     cpu.ARM64.HasSVE,
	}
}

// GetCPUFeatures returns the detected features.
func GetCPUFeatures() CPUFeatures {
	return cpuFeatures
}

// GetCPUInfo returns a string describing available CPU features
func GetCPUInfo() string {
	named := []lo.Tuple2[string, bool]{
		{A: "SSE4", B: cpuFeatures.HasSSE4},
		{A: "AVX", B: cpuFeatures.HasAVX},
		{A: "AVX2", B: cpuFeatures.HasAVX2},
		{A: "FMA", B: cpuFeatures.HasFMA},
		{A: "AVX512F", B: cpuFeatures.HasAVX512F},
		{A: "ASIMD", B: cpuFeatures.HasASIMD},
		{A: "SVE", B: cpuFeatures.HasSVE},
	}
	features := lo.FilterMap(named, func(f lo.Tuple2[string, bool], _ int) (string, bool) {
		return f.A, f.B
	})
	if len(features) == 0 {
		return "No SIMD extensions detected"
	}
	return "CPU features: " + strings.Join(features, ", ")
}
