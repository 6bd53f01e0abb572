package gudamm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelKind     = "kind"
	LabelKernel   = "kernel"
	LabelStrategy = "strategy"
	LabelReason   = "reason"
)

var (
	DeviceMemoryInUseBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gudamm",
		Subsystem: "device",
		Name:      "memory_in_use_bytes",
	})
	DeviceAllocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gudamm",
		Subsystem: "device",
		Name:      "allocations_total",
	})
	MemcpyBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gudamm",
		Subsystem: "device",
		Name:      "memcpy_bytes_total",
	}, []string{LabelKind})
	KernelLaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gudamm",
		Subsystem: "device",
		Name:      "kernel_launches_total",
	}, []string{LabelKernel})
	MultiplySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gudamm",
		Subsystem: "matmul",
		Name:      "multiply_seconds",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{LabelStrategy})
	MultiplyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gudamm",
		Subsystem: "matmul",
		Name:      "multiply_failures_total",
	}, []string{LabelReason})
)
