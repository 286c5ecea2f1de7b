package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceancl/internal/ocean"
)

func TestWatcherPushesParamChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocean.toml")
	require.NoError(t, os.WriteFile(path, []byte("[params]\namplitude = 80\n"), 0o644))
	cfg, err := ocean.LoadConfig(path)
	require.NoError(t, err)

	var pe ocean.PendingEdits
	w, err := NewWatcher(path, cfg, &pe, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("[params]\namplitude = 55\nwind_angle = 10\n"), 0o644))
	require.Eventually(t, func() bool { return pe.Len() >= 2 }, 2*time.Second, 10*time.Millisecond)

	p, changed := pe.Apply(cfg.Params)
	assert.True(t, changed)
	assert.Equal(t, float32(55), p.Amplitude)
	assert.Equal(t, float32(10), p.WindAngle)
	assert.Equal(t, cfg.Params.Choppiness, p.Choppiness)
}

func TestWatcherIgnoresBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocean.yaml")
	require.NoError(t, os.WriteFile(path, []byte("params:\n  amplitude: 80\n"), 0o644))
	cfg, err := ocean.LoadConfig(path)
	require.NoError(t, err)

	var pe ocean.PendingEdits
	w, err := NewWatcher(path, cfg, &pe, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("params: [unterminated\n"), 0o644))
	w.reload()
	assert.Zero(t, pe.Len())

	require.NoError(t, os.WriteFile(path, []byte("params:\n  amplitude: 80\n"), 0o644))
	w.reload()
	assert.Zero(t, pe.Len(), "unchanged params produce no edits")
}
