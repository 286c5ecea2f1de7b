package ocean

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalsOfTiltedPlane(t *testing.T) {
	cfg := smallConfig()
	cfg.FoamTechnique = FoamNone
	sim := newSim(t, cfg, false)
	n := cfg.TextureSize
	cell := cfg.PatchLength() / float32(n)
	const slope = 0.75

	pix := make([]float32, n*n*4)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			pix[(y*n+x)*4+2] = slope * cell * float32(x)
		}
	}
	disp, normal := sim.res.targets[0][TargetDisplacement], sim.res.targets[0][TargetNormal]
	writeImage(t, sim.queue, disp, pix)

	global, local := groupRange(n, cfg.GroupSize)
	sim.exec.BeginFrame()
	_, err := sim.launch(kernelNormals, global, local, []any{disp, normal, int32(n), cell})
	require.NoError(t, err)
	require.NoError(t, sim.exec.Finish())

	got := readImage(t, sim.queue, normal)
	inv := 1 / math.Sqrt(slope*slope+1)
	for y := 0; y < n; y++ {
		for x := 1; x < n-1; x++ {
			o := got[(y*n+x)*4:]
			assert.InDelta(t, -slope*inv, o[0], 1e-4, "(%d,%d)", x, y)
			assert.InDelta(t, 0, o[1], 1e-4)
			assert.InDelta(t, inv, o[2], 1e-4)
		}
	}
}
