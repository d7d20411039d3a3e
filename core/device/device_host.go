//go:build !cuda

package device

func probeAccelerator() (Info, bool) {
	return Info{}, false
}

func acceleratorMemory() (used, total uint64, ok bool) {
	return 0, 0, false
}
