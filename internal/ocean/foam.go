package ocean

import (
	"fmt"

	"oceancl/internal/compute"
)

// foamFrame is what a foam strategy sees of the current frame.
type foamFrame struct {
	exec         Executor
	params       Params
	elapsed, dt  float32
	zmin, zmax   float32
	noise        compute.Image
	disp, normal compute.Image
	n, group     int
	// deps are the launches the composite step must follow: normal
	// extraction and the z-range readback.
	deps []Handle
}

// FoamStrategy writes a foam intensity into the .w channel of the output
// images. Prepare may run ahead of the spectral stages; Composite runs once
// the z-range of the frame is known.
type FoamStrategy interface {
	Name() FoamTechnique
	Programs() []compute.Program
	Setup(dev compute.Device, ks compute.Kernels) error
	Prepare(f *foamFrame) (Handle, error)
	Composite(f *foamFrame, prepared Handle) (Handle, error)
	Close()
}

// NewFoamStrategy returns the strategy for t.
func NewFoamStrategy(t FoamTechnique, tech WaveTechnique, cfg Config) (FoamStrategy, error) {
	switch t {
	case FoamNone:
		return noFoam{}, nil
	case FoamThreshold:
		return &thresholdFoam{threshold: tech.FoamThreshold()}, nil
	case FoamFluid:
		return newFluidFoam(cfg, tech.FoamThreshold())
	}
	return nil, fmt.Errorf("unknown foam technique %q", t)
}

type noFoam struct{}

func (noFoam) Name() FoamTechnique                          { return FoamNone }
func (noFoam) Programs() []compute.Program                  { return nil }
func (noFoam) Setup(compute.Device, compute.Kernels) error  { return nil }
func (noFoam) Prepare(*foamFrame) (Handle, error)           { return Handle{}, nil }
func (noFoam) Composite(*foamFrame, Handle) (Handle, error) { return Handle{}, nil }
func (noFoam) Close()                                       {}

// thresholdFoam marks crests above a technique-dependent fraction of the
// height range, with a little noise.
type thresholdFoam struct {
	threshold float32
	kernel    compute.Kernel
}

func (f *thresholdFoam) Name() FoamTechnique         { return FoamThreshold }
func (f *thresholdFoam) Programs() []compute.Program { return []compute.Program{foamThresholdProgram()} }

func (f *thresholdFoam) Setup(_ compute.Device, ks compute.Kernels) error {
	f.kernel = ks[kernelFoamThreshold]
	if f.kernel == nil {
		return fmt.Errorf("threshold foam: kernel %s missing", kernelFoamThreshold)
	}
	return nil
}

func (f *thresholdFoam) Prepare(*foamFrame) (Handle, error) { return Handle{}, nil }

func (f *thresholdFoam) Composite(ff *foamFrame, _ Handle) (Handle, error) {
	global, local := groupRange(ff.n, ff.group)
	return ff.exec.Launch(kernelFoamThreshold, f.kernel, global, local, []any{
		ff.noise, ff.disp, ff.normal, int32(ff.n), ff.zmin, ff.zmax, f.threshold, ff.elapsed,
	}, ff.deps...)
}

func (f *thresholdFoam) Close() {}

const (
	jacobiIterations = 20
	advectDamping    = 0.5
	densityRevert    = 0.05
	foamVelScale     = 0.01
	foamRate         = 4
)

// fluidFoam advects a foam density with a stabilized fluid solver on a grid
// foam_scope_mult times finer than the spectrum. The velocity field is
// (vx, vy, density, 0).
type fluidFoam struct {
	threshold float32
	size      int
	mult      int
	group     int
	plan      ReducePlan

	kernels  compute.Kernels
	fields   PingPong
	div      compute.Image
	pressure PingPong
	vel      [2]compute.Image
	owned    []compute.Image

	initialized bool
	clears      int
	lastVMax    float32
	lastDt      float32
	velBuf      [2]float32
}

func newFluidFoam(cfg Config, threshold float32) (*fluidFoam, error) {
	size := cfg.FoamSize()
	plan, err := NewReducePlan(size, cfg.GroupSize)
	if err != nil {
		return nil, fmt.Errorf("fluid foam: %w", err)
	}
	return &fluidFoam{
		threshold: threshold,
		size:      size,
		mult:      cfg.FoamScopeMult,
		group:     cfg.GroupSize,
		plan:      plan,
	}, nil
}

func (f *fluidFoam) Name() FoamTechnique         { return FoamFluid }
func (f *fluidFoam) Programs() []compute.Program { return []compute.Program{fluidProgram()} }

func (f *fluidFoam) Setup(dev compute.Device, ks compute.Kernels) error {
	f.kernels = ks
	alloc := func(w int, format compute.Format) (compute.Image, error) {
		img, err := dev.NewImage(w, w, format)
		if err != nil {
			return nil, err
		}
		f.owned = append(f.owned, img)
		return img, nil
	}
	specs := []struct {
		w      int
		format compute.Format
	}{
		{f.size, compute.FormatRGBA}, {f.size, compute.FormatRGBA}, // fields
		{f.size, compute.FormatR},                                  // divergence
		{f.size, compute.FormatR}, {f.size, compute.FormatR},       // pressure
		{f.size, compute.FormatRG}, {f.size / 2, compute.FormatRG}, // velocity reduction
	}
	imgs := make([]compute.Image, len(specs))
	for i, s := range specs {
		img, err := alloc(s.w, s.format)
		if err != nil {
			f.Close()
			return fmt.Errorf("allocating foam fields: %w", err)
		}
		imgs[i] = img
	}
	f.fields = NewPingPong(imgs[0], imgs[1])
	f.div = imgs[2]
	f.pressure = NewPingPong(imgs[3], imgs[4])
	f.vel = [2]compute.Image{imgs[5], imgs[6]}
	return nil
}

// Clears is the number of times the solver state was zeroed.
func (f *fluidFoam) Clears() int { return f.clears }

func (f *fluidFoam) launch(ff *foamFrame, entry string, args []any, deps ...Handle) (Handle, error) {
	global, local := groupRange(f.size, f.group)
	return ff.exec.Launch(entry, f.kernels[entry], global, local, args, deps...)
}

// Prepare runs the solver step that does not depend on the ocean: the CFL
// clamp, advection, divergence, the Jacobi pressure solve and projection.
func (f *fluidFoam) Prepare(ff *foamFrame) (Handle, error) {
	w := int32(f.size)
	var deps []Handle
	if !f.initialized {
		for _, img := range []compute.Image{f.fields.At(0), f.fields.At(1), f.div, f.pressure.At(0), f.pressure.At(1)} {
			h, err := f.launch(ff, kernelClear, []any{img, w, int32(img.Format().Channels())})
			if err != nil {
				return Handle{}, fmt.Errorf("clearing foam state: %w", err)
			}
			deps = append(deps, h)
		}
		f.initialized = true
		f.clears++
	}

	last, err := f.launch(ff, kernelVelocitySeed, []any{f.fields.Read(), f.vel[0], w}, deps...)
	if err != nil {
		return Handle{}, err
	}
	last, err = encodeReduction(ff.exec, f.kernels[kernelReduce], f.plan, f.vel, last)
	if err != nil {
		return Handle{}, fmt.Errorf("reducing foam velocity: %w", err)
	}
	read, err := ff.exec.ReadImage("velocity readback", f.vel[f.plan.ResultIndex()], 0, 0, 1, 1, f.velBuf[:], last)
	if err != nil {
		return Handle{}, err
	}
	f.lastVMax = f.velBuf[1]
	dt := ClampDt(ff.dt, f.lastVMax)
	f.lastDt = dt

	adv, err := f.launch(ff, kernelAdvect, []any{f.fields.Read(), f.fields.Write(), w, dt, float32(advectDamping)}, read)
	if err != nil {
		return Handle{}, err
	}
	f.fields.Swap()
	last, err = f.launch(ff, kernelDivergence, []any{f.fields.Read(), f.div, w}, adv)
	if err != nil {
		return Handle{}, err
	}
	for range jacobiIterations {
		last, err = f.launch(ff, kernelJacobi, []any{f.pressure.Read(), f.pressure.Write(), f.div, w}, last)
		if err != nil {
			return Handle{}, err
		}
		f.pressure.Swap()
	}
	proj, err := f.launch(ff, kernelProject, []any{f.fields.Read(), f.pressure.Read(), f.fields.Write(), w, dt, float32(densityRevert)}, last)
	if err != nil {
		return Handle{}, err
	}
	f.fields.Swap()
	return proj, nil
}

// Composite injects foam at the crests and writes the intensity into the
// output images.
func (f *fluidFoam) Composite(ff *foamFrame, prepared Handle) (Handle, error) {
	wx, wy := ff.params.Wind()
	global, local := groupRange(ff.n, ff.group)
	deps := append([]Handle{prepared}, ff.deps...)
	return ff.exec.Launch(kernelFoamInject, f.kernels[kernelFoamInject], global, local, []any{
		f.fields.Read(), ff.noise, ff.disp, ff.normal, int32(ff.n), int32(f.mult),
		ff.zmin, ff.zmax, f.threshold, wx, wy, f.lastDt, float32(foamVelScale), float32(foamRate),
	}, deps...)
}

func (f *fluidFoam) Close() {
	for _, img := range f.owned {
		img.Release()
	}
	f.owned = nil
}
