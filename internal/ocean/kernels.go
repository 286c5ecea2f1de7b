package ocean

import "oceancl/internal/compute"

// Kernel entry points. Every entry exists both as OpenCL C and as a host
// function with the same argument order.
const (
	kernelTwiddle          = "twiddle_init"
	kernelSpectrumPhillips = "spectrum_phillips"
	kernelSpectrumJonswap  = "spectrum_jonswap"
	kernelEvolve           = "evolve"
	kernelButterfly        = "fft_butterfly"
	kernelCopyRG           = "copy_rg"
	kernelInversion        = "inversion"
	kernelReduce           = "reduce_minmax"
	kernelNormals          = "normals"
	kernelClear            = "clear"
	kernelFoamThreshold    = "foam_threshold"
	kernelVelocitySeed     = "velocity_seed"
	kernelAdvect           = "advect"
	kernelDivergence       = "divergence"
	kernelJacobi           = "jacobi"
	kernelProject          = "project"
	kernelFoamInject       = "foam_inject"
)

const gravity = 9.81

// spectralProgram holds the kernels shared by every configuration plus the
// spectrum initializer of the chosen technique.
func spectralProgram(tech WaveTechnique) compute.Program {
	entries := []string{
		kernelTwiddle, tech.SpectrumEntry(), kernelEvolve, kernelButterfly,
		kernelCopyRG, kernelInversion, kernelReduce, kernelNormals, kernelClear,
	}
	return compute.Program{
		Name:    "spectral",
		Source:  clCommonSource + clSpectralSource,
		Entries: entries,
		Host:    hostKernels(entries),
	}
}

func foamThresholdProgram() compute.Program {
	entries := []string{kernelFoamThreshold}
	return compute.Program{
		Name:    "foam_threshold",
		Source:  clCommonSource + clFoamThresholdSource,
		Entries: entries,
		Host:    hostKernels(entries),
	}
}

func fluidProgram() compute.Program {
	entries := []string{
		kernelClear, kernelVelocitySeed, kernelReduce, kernelAdvect,
		kernelDivergence, kernelJacobi, kernelProject, kernelFoamInject,
	}
	return compute.Program{
		Name:    "fluid",
		Source:  clCommonSource + clFluidSource,
		Entries: entries,
		Host:    hostKernels(entries),
	}
}

func hostKernels(entries []string) map[string]compute.KernelFunc {
	out := make(map[string]compute.KernelFunc, len(entries))
	for _, e := range entries {
		if fn, ok := hostKernelTable[e]; ok {
			out[e] = fn
		}
	}
	return out
}

// groupRange returns the launch geometry of a size x size grid.
func groupRange(size, group int) (global, local [2]int) {
	l := min(group, size)
	return [2]int{size, size}, [2]int{l, l}
}
