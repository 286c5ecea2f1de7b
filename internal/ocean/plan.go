package ocean

import (
	"fmt"
	"math"

	"oceancl/internal/compute"
)

// ReverseBits reverses the low bits of n. Bits above them are dropped, so
// applying it twice restores n only when n < 1<<bits.
func ReverseBits(n uint32, bits int) uint32 {
	var r uint32
	for range bits {
		r = r<<1 | n&1
		n >>= 1
	}
	return r
}

// FFTPlan describes the inverse transform of one N x N field. Stage 0 is a
// radix-4 butterfly over bit-reversed input, so a direction takes
// log2(N)-1 launches in total.
type FFTPlan struct {
	N      int
	Log2N  int
	Stages int
}

// NewFFTPlan validates n.
func NewFFTPlan(n int) (FFTPlan, error) {
	if !isPow2(n) || n < 4 {
		return FFTPlan{}, fmt.Errorf("fft size %d must be a power of two >= 4", n)
	}
	l := log2(n)
	return FFTPlan{N: n, Log2N: l, Stages: l - 1}, nil
}

// ReversalBits is the width of the input permutation; the fused first stage
// consumes two of them.
func (p FFTPlan) ReversalBits() int { return p.Stages + 1 }

// CopyBack reports whether a direction pass ends in the scratch image and
// must be copied into the field.
func (p FFTPlan) CopyBack() bool { return p.Stages%2 == 1 }

// ButterflyLaunches is the per-frame launch count for the three axes.
func (p FFTPlan) ButterflyLaunches() int { return 3 * 2 * p.Stages }

// CopyLaunches is the per-frame copy-back count for the three axes.
func (p FFTPlan) CopyLaunches() int {
	if p.CopyBack() {
		return 3 * 2
	}
	return 0
}

// TwiddleTexel computes texel (stage, i) of the twiddle image.
//
// Stage 0 holds the four bit-reversed source indices of the radix-4 block
// containing i. Later stages hold (w.re, w.im, top, bottom) with the output
// being in[top] + w*in[bottom].
func (p FFTPlan) TwiddleTexel(stage, i int) [4]float32 {
	if stage == 0 {
		b := uint32(i &^ 3)
		bits := p.ReversalBits()
		return [4]float32{
			float32(ReverseBits(b, bits)),
			float32(ReverseBits(b+1, bits)),
			float32(ReverseBits(b+2, bits)),
			float32(ReverseBits(b+3, bits)),
		}
	}
	h := 1 << (stage + 1)
	j := i % (2 * h)
	k := j % h
	theta := math.Pi * float64(k) / float64(h)
	wr, wi := float32(math.Cos(theta)), float32(math.Sin(theta))
	if j < h {
		return [4]float32{wr, wi, float32(i), float32(i + h)}
	}
	return [4]float32{-wr, -wi, float32(i - h), float32(i)}
}

// ReducePlan describes the min/max tree reduction of an N x N field. Each
// stage halves both sides; stage p reads buffer p%2 and writes (p+1)%2.
type ReducePlan struct {
	N      int
	Group  int
	Stages int
}

// NewReducePlan validates n and group.
func NewReducePlan(n, group int) (ReducePlan, error) {
	if !isPow2(n) || n < 2 {
		return ReducePlan{}, fmt.Errorf("reduction size %d must be a power of two >= 2", n)
	}
	if !isPow2(group) {
		return ReducePlan{}, fmt.Errorf("group size %d must be a power of two", group)
	}
	return ReducePlan{N: n, Group: group, Stages: log2(n)}, nil
}

// Stage returns the output side and local size of stage p. The local size
// shrinks with the grid once the group would no longer fit.
func (p ReducePlan) Stage(stage int) (size, local int) {
	size = p.N >> (stage + 1)
	return size, min(p.Group, size)
}

// ResultIndex is the buffer holding the 1x1 result.
func (p ReducePlan) ResultIndex() int { return p.Stages % 2 }

// encodeReduction issues the min/max tree over bufs[0], which holds the
// values as (v, v) pairs. The result ends in texel (0, 0) of
// bufs[plan.ResultIndex()] as (min, max).
func encodeReduction(ex Executor, k compute.Kernel, plan ReducePlan, bufs [2]compute.Image, dep Handle) (Handle, error) {
	last := dep
	for p := range plan.Stages {
		size, l := plan.Stage(p)
		in, out := bufs[p%2], bufs[(p+1)%2]
		var err error
		last, err = ex.Launch(kernelReduce, k, [2]int{size, size}, [2]int{l, l},
			[]any{in, out, int32(in.Width()), int32(out.Width())}, last)
		if err != nil {
			return Handle{}, fmt.Errorf("reduction stage %d: %w", p, err)
		}
	}
	return last, nil
}

// cflLimit bounds advection to this many cells per unclamped step.
const cflLimit = 16

// ClampDt limits dt for a maximum velocity magnitude vMax. Zero or
// non-finite maxima leave dt untouched.
func ClampDt(dt, vMax float32) float32 {
	v := float64(vMax)
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return dt
	}
	return min(dt, dt*cflLimit/vMax)
}
