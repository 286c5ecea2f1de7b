package ocean

import (
	"github.com/chewxy/math32"

	"oceancl/internal/compute"
)

// amplitudeUnit converts the user amplitude into the spectrum constant.
const amplitudeUnit = 1e-4

var hostKernelTable = map[string]compute.KernelFunc{
	kernelTwiddle:          hostTwiddle,
	kernelSpectrumPhillips: hostSpectrum(phillipsDensity),
	kernelSpectrumJonswap:  hostSpectrum(jonswapDensity),
	kernelEvolve:           hostEvolve,
	kernelButterfly:        hostButterfly,
	kernelCopyRG:           hostCopyRG,
	kernelInversion:        hostInversion,
	kernelReduce:           hostReduce,
	kernelNormals:          hostNormals,
	kernelClear:            hostClear,
	kernelFoamThreshold:    hostFoamThreshold,
	kernelVelocitySeed:     hostVelocitySeed,
	kernelAdvect:           hostAdvect,
	kernelDivergence:       hostDivergence,
	kernelJacobi:           hostJacobi,
	kernelProject:          hostProject,
	kernelFoamInject:       hostFoamInject,
}

// hostTwiddle: (tw, N, bits); x is the stage, y the index.
func hostTwiddle(a compute.Args, x, y int) {
	tw, n := a.Image(0), a.Int(1)
	plan := FFTPlan{N: n, Log2N: a.Int(2), Stages: a.Int(2) - 1}
	t := plan.TwiddleTexel(x, y)
	copy(tw.At(x, y), t[:])
}

func waveVector(x, y, n int, l float32) (kx, ky float32) {
	kx = 2 * math32.Pi * float32(x-n/2) / l
	ky = 2 * math32.Pi * float32(y-n/2) / l
	return kx, ky
}

// directional weights the density by the alignment of k with the wind and
// suppresses waves travelling against it.
func directional(kx, ky, wx, wy, suppress float32) float32 {
	k := math32.Hypot(kx, ky)
	v := math32.Hypot(wx, wy)
	if k < 1e-6 || v < 1e-6 {
		return 0
	}
	c := (kx*wx + ky*wy) / (k * v)
	d := c * c
	if c < 0 {
		d *= suppress
	}
	return d
}

func phillipsDensity(kx, ky, amp, wx, wy, suppress float32) float32 {
	k2 := kx*kx + ky*ky
	v := math32.Hypot(wx, wy)
	if k2 < 1e-12 || v < 1e-6 {
		return 0
	}
	lw := v * v / gravity
	small := lw / 1000
	p := amp * amplitudeUnit * math32.Exp(-1/(k2*lw*lw)) / (k2 * k2)
	return p * directional(kx, ky, wx, wy, suppress) * math32.Exp(-k2*small*small)
}

func jonswapDensity(kx, ky, amp, wx, wy, suppress float32) float32 {
	k := math32.Hypot(kx, ky)
	v := math32.Hypot(wx, wy)
	if k < 1e-6 || v < 1e-6 {
		return 0
	}
	w := math32.Sqrt(gravity * k)
	wp := 0.855 * gravity / v
	sigma := float32(0.07)
	if w > wp {
		sigma = 0.09
	}
	d := (w - wp) / (sigma * wp)
	r := math32.Exp(-0.5 * d * d)
	ratio := wp / w
	s := amp * amplitudeUnit * gravity * gravity / (w * w * w * w * w) *
		math32.Exp(-1.25*ratio*ratio*ratio*ratio) * math32.Pow(3.3, r)
	// S(w) dw/dk / k converts the frequency spectrum to wave number space.
	p := s * (gravity / (2 * w)) / k
	return p * directional(kx, ky, wx, wy, suppress)
}

type densityFunc func(kx, ky, amp, wx, wy, suppress float32) float32

func gaussianPair(u1, u2 float32) (float32, float32) {
	u1 = max(u1, 1e-7)
	r := math32.Sqrt(-2 * math32.Log(u1))
	s, c := math32.Sincos(2 * math32.Pi * u2)
	return r * c, r * s
}

// hostSpectrum: (noise, h0k, N, L, amplitude, windX, windY, suppress).
// h0k holds h0(k) in .xy and conj(h0(-k)) in .zw.
func hostSpectrum(density densityFunc) compute.KernelFunc {
	return func(a compute.Args, x, y int) {
		noise, h0k := a.Image(0), a.Image(1)
		n, l := a.Int(2), a.Float(3)
		amp, wx, wy, suppress := a.Float(4), a.Float(5), a.Float(6), a.Float(7)
		kx, ky := waveVector(x, y, n, l)
		dk := 2 * math32.Pi / l
		u := noise.At(x, y)
		g1, g2 := gaussianPair(u[0], u[1])
		g3, g4 := gaussianPair(u[2], u[3])
		ap := math32.Sqrt(density(kx, ky, amp, wx, wy, suppress)/2) * dk * dk
		am := math32.Sqrt(density(-kx, -ky, amp, wx, wy, suppress)/2) * dk * dk
		o := h0k.At(x, y)
		o[0], o[1] = g1*ap, g2*ap
		o[2], o[3] = g3*am, -g4*am
	}
}

// hostEvolve: (h0k, dx, dy, dz, N, L, t).
func hostEvolve(a compute.Args, x, y int) {
	h0k, dx, dy, dz := a.Image(0), a.Image(1), a.Image(2), a.Image(3)
	n, l, t := a.Int(4), a.Float(5), a.Float(6)
	kx, ky := waveVector(x, y, n, l)
	k := math32.Hypot(kx, ky)
	s, c := math32.Sincos(math32.Sqrt(gravity*k) * t)
	h := h0k.At(x, y)
	re := h[0]*c - h[1]*s + h[2]*c + h[3]*s
	im := h[0]*s + h[1]*c - h[2]*s + h[3]*c
	z := dz.At(x, y)
	z[0], z[1] = re, im
	ox, oy := dx.At(x, y), dy.At(x, y)
	if k < 1e-6 {
		ox[0], ox[1], oy[0], oy[1] = 0, 0, 0, 0
		return
	}
	ux, uy := kx/k, ky/k
	ox[0], ox[1] = ux*im, -ux*re
	oy[0], oy[1] = uy*im, -uy*re
}

// hostButterfly: (tw, in, out, stage, dir, N). dir 0 transforms rows,
// 1 transforms columns.
func hostButterfly(a compute.Args, x, y int) {
	tw, in, out := a.Image(0), a.Image(1), a.Image(2)
	stage, dir := a.Int(3), a.Int(4)
	pos, line := x, y
	if dir == 1 {
		pos, line = y, x
	}
	get := func(i int) (float32, float32) {
		var t []float32
		if dir == 0 {
			t = in.At(i, line)
		} else {
			t = in.At(line, i)
		}
		return t[0], t[1]
	}
	t := tw.At(stage, pos)
	var re, im float32
	if stage == 0 {
		a0r, a0i := get(int(t[0]))
		a1r, a1i := get(int(t[1]))
		a2r, a2i := get(int(t[2]))
		a3r, a3i := get(int(t[3]))
		switch pos & 3 {
		case 0:
			re, im = a0r+a1r+a2r+a3r, a0i+a1i+a2i+a3i
		case 1:
			re, im = a0r-a1r-(a2i-a3i), a0i-a1i+(a2r-a3r)
		case 2:
			re, im = a0r+a1r-a2r-a3r, a0i+a1i-a2i-a3i
		case 3:
			re, im = a0r-a1r+(a2i-a3i), a0i-a1i-(a2r-a3r)
		}
	} else {
		tr, ti := get(int(t[2]))
		br, bi := get(int(t[3]))
		re = tr + t[0]*br - t[1]*bi
		im = ti + t[0]*bi + t[1]*br
	}
	o := out.At(x, y)
	o[0], o[1] = re, im
}

// hostCopyRG: (src, dst, width).
func hostCopyRG(a compute.Args, x, y int) {
	s, d := a.Image(0).At(x, y), a.Image(1).At(x, y)
	d[0], d[1] = s[0], s[1]
}

// hostInversion: (dx, dy, dz, disp, zr, N).
func hostInversion(a compute.Args, x, y int) {
	sign := float32(1)
	if (x+y)&1 == 1 {
		sign = -1
	}
	hx := sign * a.Image(0).At(x, y)[0]
	hy := sign * a.Image(1).At(x, y)[0]
	hz := sign * a.Image(2).At(x, y)[0]
	d := a.Image(3).At(x, y)
	d[0], d[1], d[2], d[3] = hx, hy, hz, 0
	z := a.Image(4).At(x, y)
	z[0], z[1] = hz, hz
}

// hostReduce: (in, out, inWidth, outWidth). Each item folds a 2x2 block;
// .x keeps the minimum and .y the maximum.
func hostReduce(a compute.Args, x, y int) {
	in, out := a.Image(0), a.Image(1)
	lo, hi := in.At(2*x, 2*y)[0], in.At(2*x, 2*y)[1]
	for _, p := range [3][2]int{{1, 0}, {0, 1}, {1, 1}} {
		t := in.At(2*x+p[0], 2*y+p[1])
		lo = math32.Min(lo, t[0])
		hi = math32.Max(hi, t[1])
	}
	o := out.At(x, y)
	o[0], o[1] = lo, hi
}

// hostNormals: (disp, normal, N, cell).
func hostNormals(a compute.Args, x, y int) {
	disp, normal, cell := a.Image(0), a.Image(1), a.Float(3)
	hl := disp.Wrap(x-1, y)[2]
	hr := disp.Wrap(x+1, y)[2]
	hb := disp.Wrap(x, y-1)[2]
	ht := disp.Wrap(x, y+1)[2]
	nx := -(hr - hl) / (2 * cell)
	ny := -(ht - hb) / (2 * cell)
	inv := 1 / math32.Sqrt(nx*nx+ny*ny+1)
	o := normal.At(x, y)
	o[0], o[1], o[2], o[3] = nx*inv, ny*inv, inv, 0
}

// hostClear: (img, width, channels).
func hostClear(a compute.Args, x, y int) {
	clear(a.Image(0).At(x, y))
}

func crest(h, zmin, zmax, threshold float32) float32 {
	span := max(zmax-zmin, 1e-6)
	return max(0, (h-zmin)/span*threshold-(threshold-1))
}

// hostFoamThreshold: (noise, disp, normal, N, zmin, zmax, threshold, t).
func hostFoamThreshold(a compute.Args, x, y int) {
	noise, disp, normal := a.Image(0), a.Image(1), a.Image(2)
	zmin, zmax, threshold, t := a.Float(4), a.Float(5), a.Float(6), a.Float(7)
	d := disp.At(x, y)
	jitter := noise.Wrap(x+int(t*4), y)[0] - 0.5
	f := min(max(crest(d[2], zmin, zmax, threshold)+jitter*0.2, 0), 1)
	d[3] = f
	normal.At(x, y)[3] = f
}

// hostVelocitySeed: (fluid, out, W).
func hostVelocitySeed(a compute.Args, x, y int) {
	v := a.Image(0).At(x, y)
	m := math32.Sqrt(v[0]*v[0] + v[1]*v[1])
	o := a.Image(1).At(x, y)
	o[0], o[1] = m, m
}

func sampleWrap(t *compute.Texels, px, py float32, out []float32) {
	fx, fy := math32.Floor(px), math32.Floor(py)
	ax, ay := px-fx, py-fy
	x0, y0 := int(fx), int(fy)
	c00, c10 := t.Wrap(x0, y0), t.Wrap(x0+1, y0)
	c01, c11 := t.Wrap(x0, y0+1), t.Wrap(x0+1, y0+1)
	for ch := range out {
		top := c00[ch] + (c10[ch]-c00[ch])*ax
		bot := c01[ch] + (c11[ch]-c01[ch])*ax
		out[ch] = top + (bot-top)*ay
	}
}

// hostAdvect: (src, dst, W, dt, damping). Semi-Lagrangian back-trace.
func hostAdvect(a compute.Args, x, y int) {
	src, dst := a.Image(0), a.Image(1)
	dt, damping := a.Float(3), a.Float(4)
	v := src.At(x, y)
	var s [4]float32
	sampleWrap(src, float32(x)-dt*v[0], float32(y)-dt*v[1], s[:])
	k := 1 / (1 + damping*dt)
	o := dst.At(x, y)
	o[0], o[1], o[2], o[3] = s[0]*k, s[1]*k, s[2], 0
}

// hostDivergence: (fluid, div, W).
func hostDivergence(a compute.Args, x, y int) {
	f := a.Image(0)
	d := 0.5 * (f.Wrap(x+1, y)[0] - f.Wrap(x-1, y)[0] + f.Wrap(x, y+1)[1] - f.Wrap(x, y-1)[1])
	a.Image(1).At(x, y)[0] = d
}

// hostJacobi: (pIn, pOut, div, W).
func hostJacobi(a compute.Args, x, y int) {
	p := a.Image(0)
	sum := p.Wrap(x-1, y)[0] + p.Wrap(x+1, y)[0] + p.Wrap(x, y-1)[0] + p.Wrap(x, y+1)[0]
	a.Image(1).At(x, y)[0] = (sum - a.Image(2).At(x, y)[0]) / 4
}

// hostProject: (fluid, pressure, out, W, dt, revert).
func hostProject(a compute.Args, x, y int) {
	f, p, out := a.Image(0), a.Image(1), a.Image(2)
	dt, revert := a.Float(4), a.Float(5)
	gx := 0.5 * (p.Wrap(x+1, y)[0] - p.Wrap(x-1, y)[0])
	gy := 0.5 * (p.Wrap(x, y+1)[0] - p.Wrap(x, y-1)[0])
	v := f.At(x, y)
	o := out.At(x, y)
	o[0], o[1], o[2], o[3] = v[0]-gx, v[1]-gy, v[2]/(1+revert*dt), 0
}

// hostFoamInject: (fluid, noise, disp, normal, N, mult, zmin, zmax,
// threshold, windX, windY, dt, velScale, rate). Each ocean cell owns the
// fluid cell at the centre of its footprint.
func hostFoamInject(a compute.Args, x, y int) {
	fluid, noise, disp, normal := a.Image(0), a.Image(1), a.Image(2), a.Image(3)
	mult := a.Int(5)
	zmin, zmax, threshold := a.Float(6), a.Float(7), a.Float(8)
	wx, wy, dt := a.Float(9), a.Float(10), a.Float(11)
	velScale, rate := a.Float(12), a.Float(13)

	d := disp.At(x, y)
	inj := crest(d[2], zmin, zmax, threshold) * (0.75 + 0.25*noise.At(x, y)[0])
	c := fluid.At(x*mult+mult/2, y*mult+mult/2)
	c[0] += wx * inj * dt * velScale
	c[1] += wy * inj * dt * velScale
	c[2] += inj * rate * dt
	f := min(max(c[2], 0), 1)
	d[3] = f
	normal.At(x, y)[3] = f
}
