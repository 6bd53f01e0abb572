//go:build !linux

package gudamm

func getSystemMemory() uint64 {
	return defaultSystemMemory
}
