// Package ocean simulates a tiling ocean surface with an FFT over a
// statistical wave spectrum, plus an optional foam layer, on a compute
// device.
//
// A Simulation owns every device resource it allocates. Each Tick encodes one
// frame: spectrum evolution, three inverse 2D FFTs, sign inversion into the
// displacement image, a min/max reduction of the height channel that is read
// back synchronously, normal extraction and foam. The displacement and normal
// images of the frame slot are then handed to a Surface.
package ocean

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"oceancl/internal/compute"
)

// Options configures New.
type Options struct {
	Config Config
	Device compute.Device
	// Surface receives the output images. Nil selects a StagingSurface.
	Surface Surface
	Logger  *slog.Logger
	// Start is the animation epoch; zero means time.Now.
	Start time.Time
}

// FrameStats summarizes one Tick.
type FrameStats struct {
	Frame           uint64         `json:"frame"`
	Slot            int            `json:"slot"`
	ZMin            float32        `json:"zmin"`
	ZMax            float32        `json:"zmax"`
	Elapsed         float32        `json:"elapsed"`
	Dt              float32        `json:"dt"`
	FoamDt          float32        `json:"foam_dt,omitempty"`
	Launches        int            `json:"launches"`
	Kernels         map[string]int `json:"kernels,omitempty"`
	Unsynchronized  int            `json:"unsynchronized,omitempty"`
	SpectrumRebuilt bool           `json:"spectrum_rebuilt"`
	Skipped         bool           `json:"skipped,omitempty"`
	Params          Params         `json:"params"`
}

// Simulation is the ocean pipeline bound to one device.
type Simulation struct {
	cfg     Config
	dev     compute.Device
	log     *slog.Logger
	tech    WaveTechnique
	foam    FoamStrategy
	fft     FFTPlan
	reduce  ReducePlan
	queue   compute.Queue
	exec    Executor
	bridge  *Bridge
	staging *StagingSurface

	programs []compute.Kernels
	kernels  compute.Kernels
	res      *resources

	edits        PendingEdits
	params       Params
	dirty        bool
	twiddleReady bool
	clock        *Clock
	frame        uint64
	last         FrameStats
	zbuf         [2]float32
}

// New validates cfg, builds the kernels and allocates every resource.
func New(opts Options) (*Simulation, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Device == nil {
		return nil, errors.New("ocean: no compute device")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tech, err := NewWaveTechnique(cfg.SpectralTechnique)
	if err != nil {
		return nil, err
	}
	foam, err := NewFoamStrategy(cfg.FoamTechnique, tech, cfg)
	if err != nil {
		return nil, err
	}
	fft, err := NewFFTPlan(cfg.TextureSize)
	if err != nil {
		return nil, err
	}
	reduce, err := NewReducePlan(cfg.TextureSize, cfg.GroupSize)
	if err != nil {
		return nil, err
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	s := &Simulation{
		cfg:    cfg,
		dev:    opts.Device,
		log:    logger,
		tech:   tech,
		foam:   foam,
		fft:    fft,
		reduce: reduce,
		params: cfg.Params,
		dirty:  true,
		clock:  NewClock(start),
	}
	if err := s.init(opts.Surface); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Simulation) init(surface Surface) error {
	s.reportCapabilities()

	spectral, err := s.dev.Build(spectralProgram(s.tech))
	if err != nil {
		return fmt.Errorf("building spectral kernels: %w", err)
	}
	s.programs = append(s.programs, spectral)
	s.kernels = spectral
	foamKernels := compute.Kernels{}
	for _, p := range s.foam.Programs() {
		ks, err := s.dev.Build(p)
		if err != nil {
			return fmt.Errorf("building %s foam kernels: %w", s.foam.Name(), err)
		}
		s.programs = append(s.programs, ks)
		for name, k := range ks {
			foamKernels[name] = k
		}
	}

	if s.res, err = allocResources(s.dev, s.fft, s.cfg.FramesInFlight); err != nil {
		return err
	}
	if err := s.foam.Setup(s.dev, foamKernels); err != nil {
		return err
	}

	sched := s.cfg.EffectiveScheduler()
	if s.queue, err = s.dev.NewQueue(sched == SchedulerGraph); err != nil {
		return fmt.Errorf("creating queue: %w", err)
	}
	if sched == SchedulerGraph {
		s.exec = NewGraphExecutor(s.queue, s.log)
	} else {
		s.exec = NewInOrderExecutor(s.queue, s.log)
	}

	ev, err := s.queue.WriteImage(s.res.noise, noiseTexels(s.fft.N, s.cfg.Seed), nil)
	if err != nil {
		return fmt.Errorf("uploading noise: %w", err)
	}
	if err := ev.Wait(); err != nil {
		return fmt.Errorf("uploading noise: %w", err)
	}

	if surface == nil {
		s.staging = NewStagingSurface(s.fft.N, s.cfg.FramesInFlight, s.cfg.StagingFP16)
		surface = s.staging
	}
	if s.bridge, err = NewBridge(s.dev, surface, s.res.targets, s.cfg.ZeroCopy, s.log); err != nil {
		return err
	}

	s.log.Info("ocean pipeline ready",
		"texture_size", s.fft.N,
		"technique", s.tech.Name(),
		"foam", s.foam.Name(),
		"scheduler", sched,
		"out_of_order", s.queue.OutOfOrder(),
		"zero_copy", s.bridge.Shared(),
		"fft_stages", s.fft.Stages,
		"copy_back", s.fft.CopyBack())
	return nil
}

func (s *Simulation) reportCapabilities() {
	id, caps := s.dev.Identity(), s.dev.Capabilities()
	s.log.Info("compute device",
		"platform", id.Platform,
		"device", id.Name,
		"max_image_width", caps.MaxImage2DWidth,
		"max_alloc", caps.MaxAllocSize,
		"global_mem", caps.GlobalMemSize,
		"external_memory", caps.ExternalMemory,
		"handle_type", caps.HandleType)
	side := s.cfg.TextureSize
	if s.cfg.FoamTechnique == FoamFluid {
		side = max(side, s.cfg.FoamSize())
	}
	if caps.MaxImage2DWidth > 0 && side > caps.MaxImage2DWidth {
		s.log.Warn("requested textures exceed the device image width", "side", side, "limit", caps.MaxImage2DWidth)
	}
	if bytes := compute.ImageBytes(side, side, compute.FormatRGBA); caps.MaxAllocSize > 0 && bytes > caps.MaxAllocSize {
		s.log.Warn("largest texture exceeds the device allocation limit", "bytes", bytes, "limit", caps.MaxAllocSize)
	}
}

// Edits is the queue external edit sources push into.
func (s *Simulation) Edits() *PendingEdits { return &s.edits }

// Params returns the parameters of the last tick.
func (s *Simulation) Params() Params { return s.params }

func (s *Simulation) Config() Config               { return s.cfg }
func (s *Simulation) Technique() WaveTechnique     { return s.tech }
func (s *Simulation) Staging() *StagingSurface     { return s.staging }
func (s *Simulation) Shared() bool                 { return s.bridge.Shared() }
func (s *Simulation) Last() FrameStats             { return s.last }
func (s *Simulation) Device() compute.Identity     { return s.dev.Identity() }
func (s *Simulation) Scheduler() SchedulerKind     { return s.cfg.EffectiveScheduler() }
func (s *Simulation) FoamTechnique() FoamTechnique { return s.foam.Name() }

// AltitudeScale is the render height scale after the technique adjustment.
func (s *Simulation) AltitudeScale() float32 { return s.tech.AltitudeScale(s.params.AltitudeScale) }

// Graph returns a copy of the dependency graph of the last encoded frame.
func (s *Simulation) Graph() *FrameGraph { return s.exec.Graph().Clone() }

// Tick applies pending edits, advances the clock and, unless paused, encodes
// and completes one frame.
func (s *Simulation) Tick(now time.Time) (FrameStats, error) {
	params, changed := s.edits.Apply(s.params)
	s.params = params
	s.dirty = s.dirty || changed
	elapsed, dt := s.clock.Advance(now, params.Animate)
	if !params.Animate {
		st := s.last
		st.Elapsed, st.Dt, st.Skipped, st.Params = elapsed, 0, true, params
		st.Kernels, st.Launches, st.SpectrumRebuilt = nil, 0, false
		return st, nil
	}

	slot := int(s.frame % uint64(s.cfg.FramesInFlight))
	st, err := s.encode(slot, elapsed, dt)
	if err != nil {
		return st, fmt.Errorf("frame %d: %w", s.frame, err)
	}
	s.frame++
	s.last = st
	s.log.Debug("frame complete",
		"frame", st.Frame,
		"slot", st.Slot,
		"launches", st.Launches,
		"dt", st.Dt,
		"foam_dt", st.FoamDt,
		"zmin", st.ZMin,
		"zmax", st.ZMax)
	return st, nil
}

func (s *Simulation) launch(entry string, global, local [2]int, args []any, deps ...Handle) (Handle, error) {
	k, ok := s.kernels[entry]
	if !ok {
		return Handle{}, fmt.Errorf("kernel %s not built", entry)
	}
	return s.exec.Launch(entry, k, global, local, args, deps...)
}

func (s *Simulation) encode(slot int, elapsed, dt float32) (FrameStats, error) {
	ex := s.exec
	ex.BeginFrame()
	st := FrameStats{Frame: s.frame, Slot: slot, Elapsed: elapsed, Dt: dt, Params: s.params}

	n := s.fft.N
	n32 := int32(n)
	l := s.cfg.PatchLength()
	global, local := groupRange(n, s.cfg.GroupSize)
	res := s.res

	var pre []Handle
	if !s.twiddleReady {
		h, err := s.launch(kernelTwiddle, [2]int{s.fft.Stages, n}, [2]int{1, local[1]},
			[]any{res.twiddle, n32, int32(s.fft.Log2N)})
		if err != nil {
			return st, err
		}
		pre = append(pre, h)
		s.twiddleReady = true
	}
	if s.dirty {
		wx, wy := s.params.Wind()
		h, err := s.launch(s.tech.SpectrumEntry(), global, local, []any{
			res.noise, res.h0k, n32, l, s.params.Amplitude, wx, wy, s.params.SuppressFactor,
		})
		if err != nil {
			return st, err
		}
		pre = append(pre, h)
		s.dirty = false
		st.SpectrumRebuilt = true
	}

	evolve, err := s.launch(kernelEvolve, global, local,
		[]any{res.h0k, res.axes[0], res.axes[1], res.axes[2], n32, l, elapsed}, pre...)
	if err != nil {
		return st, err
	}
	fftDeps := append(slices.Clone(pre), evolve)
	var axes [3]Handle
	for a := range axes {
		if axes[a], err = s.encodeAxis(a, fftDeps); err != nil {
			return st, err
		}
	}

	acq, err := s.bridge.Acquire(ex, slot, axes[:]...)
	if err != nil {
		return st, err
	}
	disp, normal := res.targets[slot][TargetDisplacement], res.targets[slot][TargetNormal]
	inv, err := s.launch(kernelInversion, global, local,
		[]any{res.axes[0], res.axes[1], res.axes[2], disp, res.zrange[0], n32}, acq)
	if err != nil {
		return st, err
	}
	last, err := encodeReduction(ex, s.kernels[kernelReduce], s.reduce, res.zrange, inv)
	if err != nil {
		return st, err
	}
	nrm, err := s.launch(kernelNormals, global, local, []any{disp, normal, n32, l / float32(n)}, inv)
	if err != nil {
		return st, err
	}

	ff := &foamFrame{
		exec:    ex,
		params:  s.params,
		elapsed: elapsed,
		dt:      dt,
		noise:   res.noise,
		disp:    disp,
		normal:  normal,
		n:       n,
		group:   s.cfg.GroupSize,
	}
	prepared, err := s.foam.Prepare(ff)
	if err != nil {
		return st, fmt.Errorf("foam: %w", err)
	}

	zread, err := ex.ReadImage("zrange readback", res.zrange[s.reduce.ResultIndex()], 0, 0, 1, 1, s.zbuf[:], last)
	if err != nil {
		return st, err
	}
	st.ZMin, st.ZMax = s.zbuf[0], s.zbuf[1]
	ff.zmin, ff.zmax = st.ZMin, st.ZMax
	ff.deps = []Handle{nrm, zread}
	if _, err := s.foam.Composite(ff, prepared); err != nil {
		return st, fmt.Errorf("foam: %w", err)
	}

	if _, err := s.bridge.Release(ex, slot, ex.Frontier()...); err != nil {
		return st, err
	}
	if err := ex.Finish(); err != nil {
		return st, err
	}
	s.bridge.Publish(slot, ZRange{Min: st.ZMin, Max: st.ZMax})

	if f, ok := s.foam.(*fluidFoam); ok {
		st.FoamDt = f.lastDt
	}
	stats := ex.Stats()
	st.Launches = stats.Total()
	st.Kernels = stats.Launches
	st.Unsynchronized = stats.Unsynchronized
	return st, nil
}

// encodeAxis runs the row and column passes of one inverse 2D FFT. Each
// pass ends in the field's own image, copying back from scratch when the
// stage count is odd.
func (s *Simulation) encodeAxis(axis int, deps []Handle) (Handle, error) {
	n := s.fft.N
	global, local := groupRange(n, s.cfg.GroupSize)
	pp := NewPingPong(s.res.axes[axis], s.res.scratch[axis])
	last := deps
	for dir := range 2 {
		for stage := range s.fft.Stages {
			h, err := s.launch(kernelButterfly, global, local, []any{
				s.res.twiddle, pp.Read(), pp.Write(), int32(stage), int32(dir), int32(n),
			}, last...)
			if err != nil {
				return Handle{}, err
			}
			last = []Handle{h}
			pp.Swap()
		}
		if pp.Parity() == 1 {
			h, err := s.launch(kernelCopyRG, global, local, []any{pp.Read(), pp.At(0), int32(n)}, last...)
			if err != nil {
				return Handle{}, err
			}
			last = []Handle{h}
			pp.Reset()
		}
	}
	return last[0], nil
}

// Readback copies one output image of slot to the host. It must not be
// called while a frame is being encoded.
func (s *Simulation) Readback(slot int, t Target) ([]float32, error) {
	if slot < 0 || slot >= len(s.res.targets) || t < 0 || t >= targetCount {
		return nil, fmt.Errorf("no output image for slot %d target %d", slot, t)
	}
	img := s.res.targets[slot][t]
	dst := make([]float32, img.Width()*img.Height()*img.Format().Channels())
	if err := s.queue.ReadImage(img, 0, 0, img.Width(), img.Height(), dst, nil); err != nil {
		return nil, fmt.Errorf("reading %s: %w", t, err)
	}
	return dst, nil
}

// Close waits for outstanding work and releases every resource. The device
// itself stays open.
func (s *Simulation) Close() error {
	var err error
	if s.queue != nil {
		err = s.queue.Finish()
		s.queue.Close()
		s.queue = nil
	}
	if s.foam != nil {
		s.foam.Close()
	}
	for _, ks := range s.programs {
		ks.Release()
	}
	s.programs = nil
	if s.res != nil {
		s.res.release()
		s.res = nil
	}
	return err
}
