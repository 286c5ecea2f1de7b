package main

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/mazznoer/colorgrad"

	"oceancl/internal/ocean"
)

// Light direction, normalized.
var lightX, lightY, lightZ = func() (float32, float32, float32) {
	x, y, z := float32(-0.4), float32(-0.5), float32(0.77)
	inv := 1 / math32.Sqrt(x*x+y*y+z*z)
	return x * inv, y * inv, z * inv
}()

// newPalette samples the height gradient from troughs to crests.
func newPalette() [paletteSize][3]float32 {
	grad, err := colorgrad.NewGradient().
		HtmlColors("#021526", "#03346e", "#2f6f9f", "#6eacda", "#e2f1f8").
		Build()
	if err != nil {
		grad = colorgrad.Viridis()
	}
	var pal [paletteSize][3]float32
	for i, c := range grad.Colors(paletteSize) {
		r, g, b, _ := c.RGBA()
		pal[i] = [3]float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff}
	}
	return pal
}

// Draw shades the latest published frame.
func (g *Game) Draw(screen *ebiten.Image) {
	if slot, zr, ok := g.staging.Latest(); ok {
		g.disp = g.staging.Pixels(slot, ocean.TargetDisplacement, g.disp)
		g.normal = g.staging.Pixels(slot, ocean.TargetNormal, g.normal)
		if g.disp != nil && g.normal != nil {
			shade(g.pixels, g.disp, g.normal, g.size, zr, &g.palette,
				g.sim.Params().Choppiness*chopPixelScale, g.sim.AltitudeScale()*reliefPerAltitude)
			screen.WritePixels(g.pixels)
		}
	}

	if *debugFlag {
		ebitenutil.DebugPrint(screen, g.overlay())
	}
}

// Layout reports the logical screen size used by Ebiten.
func (g *Game) Layout(_, _ int) (int, int) { return g.size, g.size }

// shade writes RGBA bytes for an n x n frame. Each pixel samples the texel
// whose horizontal displacement lands on it, colours it by normalized height,
// lights it with the relief-scaled normal and blends foam toward white.
func shade(dst []byte, disp, normal []float32, n int, zr ocean.ZRange, pal *[paletteSize][3]float32, chop, relief float32) {
	span := zr.Max - zr.Min
	if span <= 0 {
		span = 1
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := (y*n + x) * 4
			sx := wrap(x-int(math32.Round(disp[i]*chop)), n)
			sy := wrap(y-int(math32.Round(disp[i+1]*chop)), n)
			j := (sy*n + sx) * 4

			h := (disp[j+2] - zr.Min) / span
			c := pal[int(min(max(h, 0), 1)*(paletteSize-1))]

			nx, ny, nz := normal[j]*relief, normal[j+1]*relief, normal[j+2]
			inv := 1 / math32.Sqrt(nx*nx+ny*ny+nz*nz+1e-12)
			lit := max(0, (nx*lightX+ny*lightY+nz*lightZ)*inv)
			lum := ambientLight + (1-ambientLight)*lit

			foam := min(max(disp[j+3], 0), 1) * foamWhite
			for k := 0; k < 3; k++ {
				v := c[k]*lum*(1-foam) + foam
				dst[i+k] = uint8(min(max(v, 0), 1) * 255)
			}
			dst[i+3] = 255
		}
	}
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func (g *Game) overlay() string {
	p := g.sim.Params()
	st := g.last
	state := "running"
	if !p.Animate {
		state = "paused"
	}
	return fmt.Sprintf("FPS: %.1f  TPS: %.1f\nFrame %d (slot %d, %s)  tick %.2f ms  launches %d\nz [%.3f, %.3f]\nwind %.1f @ %.0f  amp %.1f  chop %.1f  alt %.1f\n%s / %s foam / %s  zero-copy %v\nSpace pause  A/Z wind  S/X angle  D/C amp  F/V chop  G/B alt  P snapshot",
		ebiten.ActualFPS(), ebiten.ActualTPS(),
		st.Frame, st.Slot, state, g.lastTick.Seconds()*1000, st.Launches,
		st.ZMin, st.ZMax,
		p.WindMagnitude, p.WindAngle, p.Amplitude, p.Choppiness, p.AltitudeScale,
		g.sim.Config().SpectralTechnique, g.sim.FoamTechnique(), g.sim.Scheduler(), g.sim.Shared())
}
