package ocean

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oceancl/internal/compute"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.TextureSize = 16
	cfg.GridSize = 16
	cfg.GroupSize = 4
	cfg.FoamScopeMult = 2
	return cfg
}

func newDevice(t *testing.T, external bool) *compute.CPUDevice {
	t.Helper()
	dev := compute.NewCPUDevice(compute.CPUOptions{Workers: 4, ExternalMemory: external, Logger: quietLogger()})
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func newSim(t *testing.T, cfg Config, external bool) *Simulation {
	t.Helper()
	sim, err := New(Options{Config: cfg, Device: newDevice(t, external), Logger: quietLogger(), Start: epoch})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })
	return sim
}

func readImage(t *testing.T, q compute.Queue, img compute.Image) []float32 {
	t.Helper()
	out := make([]float32, img.Width()*img.Height()*img.Format().Channels())
	require.NoError(t, q.ReadImage(img, 0, 0, img.Width(), img.Height(), out, nil))
	return out
}

func writeImage(t *testing.T, q compute.Queue, img compute.Image, pix []float32) {
	t.Helper()
	ev, err := q.WriteImage(img, pix, nil)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
}

func frameAt(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }
