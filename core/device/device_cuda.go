//go:build cuda

package device

import (
	"gorgonia.org/cu"
)

func probeAccelerator() (Info, bool) {
	n, err := cu.NumDevices()
	if err != nil || n == 0 {
		return Info{}, false
	}
	d := cu.Device(0)
	name, err := d.Name()
	if err != nil {
		return Info{}, false
	}
	mem, _ := d.TotalMem()
	sms, _ := d.Attribute(cu.MultiprocessorCount)
	return Info{Kind: CUDA, Name: name, Cores: sms, TotalMemory: uint64(mem)}, true
}

// acceleratorMemory opens a short-lived context on device 0 to read its
// free and total memory.
func acceleratorMemory() (used, total uint64, ok bool) {
	device, err := cu.GetDevice(0)
	if err != nil {
		return 0, 0, false
	}
	ctx, err := device.MakeContext(cu.SchedAuto)
	if err != nil {
		return 0, 0, false
	}
	defer func() { _ = ctx.Destroy() }()

	free, tot, err := cu.MemInfo()
	if err != nil || tot <= 0 {
		return 0, 0, false
	}
	return uint64(tot - free), uint64(tot), true
}
