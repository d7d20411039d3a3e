// Package device reports where training runs and how much accelerator
// memory it uses.
//
// Builds without the "cuda" tag always run on the host; the host is described
// with cpuid. Builds with the tag probe CUDA devices through gorgonia.org/cu.
package device

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/ezoic/atomtrain/pkg/errors"
)

// Kind distinguishes host execution from an accelerator.
type Kind int

const (
	Host Kind = iota
	CUDA
)

func (k Kind) String() string {
	if k == CUDA {
		return "cuda"
	}
	return "cpu"
}

// Info describes the selected device.
type Info struct {
	Kind        Kind
	Name        string
	Cores       int
	TotalMemory uint64
	// Vector extensions relevant to dense kernels (host only).
	Features []string
}

// Accelerated reports whether Info describes an accelerator.
func (i Info) Accelerated() bool {
	return i.Kind == CUDA
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %d cores)", i.Name, i.Kind, i.Cores)
}

// Detect selects the accelerator when one is present and the host otherwise.
func Detect() Info {
	if info, ok := probeAccelerator(); ok {
		return info
	}
	return hostInfo()
}

// DetectWithWarning is Detect plus the advisory warning emitted when training
// falls back to the host.
func DetectWithWarning() Info {
	info := Detect()
	if !info.Accelerated() {
		errors.Warn(errors.NewResourceWarning("GPU", "No GPU found. The training can be EXTREMELY slow"))
	}
	return info
}

// MemoryUsage returns used and total accelerator memory in MiB, or "N/A" for
// both when no accelerator is present.
func MemoryUsage() (used, total string) {
	u, t, ok := acceleratorMemory()
	if !ok {
		return "N/A", "N/A"
	}
	const mib = 1 << 20
	return fmt.Sprintf("%d", u/mib), fmt.Sprintf("%d", t/mib)
}

func hostInfo() Info {
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}
	var feats []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.AVX512DQ} {
		if cpuid.CPU.Supports(f) {
			feats = append(feats, f.String())
		}
	}
	return Info{Kind: Host, Name: name, Cores: cores, Features: feats}
}
