package ocean

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceancl/internal/compute"
)

func TestSimulationDeterministic(t *testing.T) {
	a := newSim(t, smallConfig(), false)
	b := newSim(t, smallConfig(), true)
	for i := range 3 {
		sa, err := a.Tick(frameAt(33 * i))
		require.NoError(t, err)
		sb, err := b.Tick(frameAt(33 * i))
		require.NoError(t, err)
		assert.Equal(t, sa.ZMin, sb.ZMin)
		assert.Equal(t, sa.ZMax, sb.ZMax)
	}
	da, err := a.Readback(0, TargetDisplacement)
	require.NoError(t, err)
	db, err := b.Readback(0, TargetDisplacement)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestSpectrumRebuiltOnlyOnReshape(t *testing.T) {
	sim := newSim(t, smallConfig(), false)
	st, err := sim.Tick(frameAt(0))
	require.NoError(t, err)
	assert.True(t, st.SpectrumRebuilt)
	assert.Equal(t, 1, st.Kernels[kernelTwiddle])
	first := readImage(t, sim.queue, sim.res.h0k)

	st, err = sim.Tick(frameAt(16))
	require.NoError(t, err)
	assert.False(t, st.SpectrumRebuilt)
	assert.Zero(t, st.Kernels[kernelTwiddle])

	require.NoError(t, sim.Edits().Push(Edit{Field: FieldChoppiness, Value: 1, Relative: true}))
	st, err = sim.Tick(frameAt(32))
	require.NoError(t, err)
	assert.False(t, st.SpectrumRebuilt, "choppiness does not reshape the spectrum")

	require.NoError(t, sim.Edits().Push(Edit{Field: FieldAmplitude, Value: 40}))
	st, err = sim.Tick(frameAt(48))
	require.NoError(t, err)
	assert.True(t, st.SpectrumRebuilt)
	assert.NotEqual(t, first, readImage(t, sim.queue, sim.res.h0k))

	require.NoError(t, sim.Edits().Push(Edit{Field: FieldAmplitude, Value: 80}))
	_, err = sim.Tick(frameAt(64))
	require.NoError(t, err)
	assert.Equal(t, first, readImage(t, sim.queue, sim.res.h0k), "same inputs rebuild a bit-identical spectrum")
}

func TestLaunchCountsPerFrame(t *testing.T) {
	for _, n := range []int{8, 16} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			cfg := smallConfig()
			cfg.TextureSize = n
			cfg.GridSize = n
			cfg.FoamTechnique = FoamNone
			sim := newSim(t, cfg, false)
			_, err := sim.Tick(frameAt(0))
			require.NoError(t, err)
			st, err := sim.Tick(frameAt(16))
			require.NoError(t, err)

			assert.Equal(t, sim.fft.ButterflyLaunches(), st.Kernels[kernelButterfly])
			assert.Equal(t, sim.fft.CopyLaunches(), st.Kernels[kernelCopyRG])
			assert.Equal(t, sim.reduce.Stages, st.Kernels[kernelReduce])
			assert.Equal(t, 1, st.Kernels[kernelEvolve])
			assert.Equal(t, 1, st.Kernels[kernelInversion])
			assert.Equal(t, 1, st.Kernels[kernelNormals])
			want := sim.fft.ButterflyLaunches() + sim.fft.CopyLaunches() + sim.reduce.Stages + 3
			assert.Equal(t, want, st.Launches)
		})
	}
}

func TestPausedTicksFreezeFrame(t *testing.T) {
	sim := newSim(t, smallConfig(), false)
	first, err := sim.Tick(frameAt(0))
	require.NoError(t, err)
	second, err := sim.Tick(frameAt(100))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, second.Elapsed, 1e-6)

	require.NoError(t, sim.Edits().Push(Edit{Field: FieldAnimate, Relative: true}))
	paused, err := sim.Tick(frameAt(5000))
	require.NoError(t, err)
	assert.True(t, paused.Skipped)
	assert.Equal(t, second.Frame, paused.Frame)
	assert.Equal(t, second.ZMax, paused.ZMax)
	assert.Zero(t, paused.Dt)
	assert.Zero(t, paused.Launches)

	require.NoError(t, sim.Edits().Push(Edit{Field: FieldAnimate, Value: 1}))
	resumed, err := sim.Tick(frameAt(5016))
	require.NoError(t, err)
	assert.False(t, resumed.Skipped)
	assert.Equal(t, first.Frame+2, resumed.Frame)
	assert.InDelta(t, 0.116, resumed.Elapsed, 1e-5, "time spent paused is not animated")
	assert.InDelta(t, 0.016, resumed.Dt, 1e-5)
}

func TestSlotsRotate(t *testing.T) {
	cfg := smallConfig()
	cfg.FramesInFlight = 3
	sim := newSim(t, cfg, false)
	for i := range 7 {
		st, err := sim.Tick(frameAt(10 * i))
		require.NoError(t, err)
		assert.Equal(t, i%3, st.Slot)
		slot, zr, ok := sim.Staging().Latest()
		require.True(t, ok)
		assert.Equal(t, st.Slot, slot)
		assert.Equal(t, ZRange{Min: st.ZMin, Max: st.ZMax}, zr)
	}
	assert.Equal(t, uint64(7), sim.Staging().Frames())
}

func TestAltitudeScaleByTechnique(t *testing.T) {
	cfg := smallConfig()
	cfg.SpectralTechnique = Phillips
	sim := newSim(t, cfg, false)
	assert.Equal(t, float32(10), sim.AltitudeScale())

	cfg.SpectralTechnique = Jonswap
	sim = newSim(t, cfg, false)
	assert.Equal(t, float32(20), sim.AltitudeScale())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.TextureSize = 12
	_, err := New(Options{Config: cfg, Device: newDevice(t, false), Logger: quietLogger()})
	require.Error(t, err)

	_, err = New(Options{Config: smallConfig(), Logger: quietLogger()})
	require.Error(t, err)
}

func TestNewReportsAllocFailure(t *testing.T) {
	dev := compute.NewCPUDevice(compute.CPUOptions{MaxImage2DWidth: 8, Logger: quietLogger()})
	t.Cleanup(func() { _ = dev.Close() })
	_, err := New(Options{Config: smallConfig(), Device: dev, Logger: quietLogger()})
	require.Error(t, err)
	var ae *compute.AllocError
	assert.True(t, errors.As(err, &ae))
	assert.True(t, IsFatal(err))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(fmt.Errorf("sharing: %w", compute.ErrUnsupported)))
	assert.True(t, IsFatal(&compute.BuildError{Program: "spectral", Log: "syntax error"}))
	assert.True(t, IsFatal(compute.ErrInvalidWorkGroupSize))
}

func TestNoiseTexels(t *testing.T) {
	a := noiseTexels(8, 3)
	require.Len(t, a, 8*8*4)
	for _, v := range a {
		require.Greater(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
	assert.Equal(t, a, noiseTexels(8, 3))
	assert.NotEqual(t, a, noiseTexels(8, 4))
}
