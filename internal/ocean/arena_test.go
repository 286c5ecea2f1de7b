package ocean

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceancl/internal/compute"
)

type doneEvent struct{}

func (doneEvent) Wait() error { return nil }

func TestArenaRetiresHandles(t *testing.T) {
	var a EventArena
	assert.False(t, Handle{}.Valid())
	_, ok := a.Lookup(Handle{})
	assert.False(t, ok)

	h := a.Acquire()
	require.True(t, h.Valid())
	a.Bind(h, doneEvent{}, nil)
	evs, ok := a.Lookup(h)
	require.True(t, ok)
	assert.Len(t, evs, 1)

	a.ResetFrame()
	_, ok = a.Lookup(h)
	assert.False(t, ok, "retired handle must not resolve")

	// the slot is reused with a new generation; the old handle stays stale
	h2 := a.Acquire()
	_, ok = a.Lookup(h)
	assert.False(t, ok)
	_, ok = a.Lookup(h2)
	assert.True(t, ok)
	assert.Equal(t, 1, a.Cap())

	a.Bind(h, doneEvent{})
	evs, _ = a.Lookup(h2)
	assert.Empty(t, evs)
}

func TestArenaGrows(t *testing.T) {
	var a EventArena
	for range 100 {
		a.Acquire()
	}
	assert.Equal(t, 100, a.Len())
	assert.Equal(t, 100, a.Cap())
	a.ResetFrame()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 100, a.Cap())
}

func TestStaleDependencyLaunchesUnsynchronized(t *testing.T) {
	dev := newDevice(t, false)
	ks, err := dev.Build(spectralProgram(phillipsTechnique{}))
	require.NoError(t, err)
	q, err := dev.NewQueue(true)
	require.NoError(t, err)
	img, err := dev.NewImage(4, 4, compute.FormatRGBA)
	require.NoError(t, err)

	ex := NewGraphExecutor(q, quietLogger())
	ex.BeginFrame()
	old, err := ex.Launch(kernelClear, ks[kernelClear], [2]int{4, 4}, [2]int{2, 2}, []any{img, int32(4), int32(4)})
	require.NoError(t, err)
	require.NoError(t, ex.Finish())

	ex.BeginFrame()
	_, err = ex.Launch(kernelClear, ks[kernelClear], [2]int{4, 4}, [2]int{2, 2}, []any{img, int32(4), int32(4)}, old)
	require.NoError(t, err)
	require.NoError(t, ex.Finish())
	assert.Equal(t, 1, ex.Stats().Unsynchronized)
	assert.Equal(t, 1, ex.Stats().Total())
}
