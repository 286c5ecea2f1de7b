package compute

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProgram() Program {
	return Program{
		Name:    "test",
		Entries: []string{"fill", "add", "boom", "slow_fill"},
		Host: map[string]KernelFunc{
			"fill": func(a Args, x, y int) {
				a.Image(0).At(x, y)[0] = a.Float(1)
			},
			"add": func(a Args, x, y int) {
				a.Image(0).At(x, y)[0] += a.Float(1)
			},
			"boom": func(a Args, x, y int) {
				panic("kernel fault")
			},
			"slow_fill": func(a Args, x, y int) {
				if x == 0 && y == 0 {
					time.Sleep(20 * time.Millisecond)
				}
				a.Image(0).At(x, y)[0] = a.Float(1)
			},
		},
	}
}

func newTestDevice(t *testing.T, external bool) (*CPUDevice, Kernels) {
	t.Helper()
	dev := NewCPUDevice(CPUOptions{Workers: 4, ExternalMemory: external})
	t.Cleanup(func() { _ = dev.Close() })
	ks, err := dev.Build(testProgram())
	require.NoError(t, err)
	return dev, ks
}

func readAll(t *testing.T, q Queue, img Image) []float32 {
	t.Helper()
	out := make([]float32, img.Width()*img.Height()*img.Format().Channels())
	require.NoError(t, q.ReadImage(img, 0, 0, img.Width(), img.Height(), out, nil))
	return out
}

func TestFormatChannels(t *testing.T) {
	assert.Equal(t, 1, FormatR.Channels())
	assert.Equal(t, 2, FormatRG.Channels())
	assert.Equal(t, 4, FormatRGBA.Channels())
	assert.Equal(t, 0, Format(0).Channels())
	assert.Equal(t, int64(16*8*4*4), ImageBytes(16, 8, FormatRGBA))
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange([2]int{16, 16}, [2]int{8, 8}))
	assert.NoError(t, CheckRange([2]int{16, 16}, [2]int{0, 0}))
	assert.ErrorIs(t, CheckRange([2]int{16, 16}, [2]int{3, 8}), ErrInvalidWorkGroupSize)
	assert.ErrorIs(t, CheckRange([2]int{0, 16}, [2]int{1, 1}), ErrInvalidWorkGroupSize)
}

func TestAssignRowBands(t *testing.T) {
	bands := splitRows(10, 3)
	require.Len(t, bands, 4)
	assert.Equal(t, rowBand{9, 10}, bands[3])

	assigned := assignRowBands(2, bands)
	require.Len(t, assigned, 2)
	assert.Equal(t, []rowBand{{0, 3}, {6, 9}}, assigned[0].bands)
	assert.Equal(t, []rowBand{{3, 6}, {9, 10}}, assigned[1].bands)

	// more workers than bands collapses to one worker per band
	assert.Len(t, assignRowBands(8, splitRows(2, 1)), 2)
}

func TestBuildMissingEntry(t *testing.T) {
	dev := NewCPUDevice(CPUOptions{})
	p := testProgram()
	p.Entries = append(p.Entries, "missing")
	_, err := dev.Build(p)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "missing", be.Entry)
	assert.Contains(t, be.Error(), "undefined kernel")
}

func TestNewImageLimits(t *testing.T) {
	dev := NewCPUDevice(CPUOptions{MaxImage2DWidth: 64})
	_, err := dev.NewImage(128, 4, FormatR)
	var ae *AllocError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ImageBytes(128, 4, FormatR), ae.Bytes)

	_, err = dev.NewImage(0, 4, FormatR)
	assert.ErrorAs(t, err, &ae)

	img, err := dev.NewImage(64, 4, FormatRG)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Width())
	assert.Equal(t, FormatRG, img.Format())
}

func TestInOrderQueueSerializes(t *testing.T) {
	dev, ks := newTestDevice(t, false)
	q, err := dev.NewQueue(false)
	require.NoError(t, err)
	img, err := dev.NewImage(8, 8, FormatR)
	require.NoError(t, err)

	_, err = q.Launch(ks["slow_fill"], [2]int{8, 8}, [2]int{4, 4}, []any{img, float32(2)}, nil)
	require.NoError(t, err)
	_, err = q.Launch(ks["add"], [2]int{8, 8}, [2]int{4, 4}, []any{img, float32(1)}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Finish())

	for _, v := range readAll(t, q, img) {
		assert.Equal(t, float32(3), v)
	}
}

func TestOutOfOrderQueueHonoursWaitList(t *testing.T) {
	dev, ks := newTestDevice(t, false)
	q, err := dev.NewQueue(true)
	require.NoError(t, err)
	assert.True(t, q.OutOfOrder())
	img, err := dev.NewImage(8, 8, FormatR)
	require.NoError(t, err)

	ev, err := q.Launch(ks["slow_fill"], [2]int{8, 8}, [2]int{0, 0}, []any{img, float32(5)}, nil)
	require.NoError(t, err)
	ev2, err := q.Launch(ks["add"], [2]int{8, 8}, [2]int{0, 0}, []any{img, float32(1)}, []Event{nil, ev})
	require.NoError(t, err)
	require.NoError(t, ev2.Wait())

	for _, v := range readAll(t, q, img) {
		assert.Equal(t, float32(6), v)
	}
}

func TestOutOfOrderQueueOverlapsIndependentLaunches(t *testing.T) {
	var running, peak atomic.Int32
	p := Program{Name: "overlap", Entries: []string{"hold"}, Host: map[string]KernelFunc{
		"hold": func(a Args, x, y int) {
			n := running.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
		},
	}}
	dev := NewCPUDevice(CPUOptions{Workers: 1})
	ks, err := dev.Build(p)
	require.NoError(t, err)
	q, err := dev.NewQueue(true)
	require.NoError(t, err)
	for range 3 {
		_, err := q.Launch(ks["hold"], [2]int{1, 1}, [2]int{1, 1}, nil, nil)
		require.NoError(t, err)
	}
	require.NoError(t, q.Finish())
	assert.Greater(t, peak.Load(), int32(1))
}

func TestFailedCommandPoisonsDependents(t *testing.T) {
	dev, ks := newTestDevice(t, false)
	q, err := dev.NewQueue(true)
	require.NoError(t, err)
	img, err := dev.NewImage(4, 4, FormatR)
	require.NoError(t, err)

	bad, err := q.Launch(ks["boom"], [2]int{4, 4}, [2]int{2, 2}, []any{img}, nil)
	require.NoError(t, err)
	dep, err := q.Launch(ks["add"], [2]int{4, 4}, [2]int{2, 2}, []any{img, float32(1)}, []Event{bad})
	require.NoError(t, err)

	assert.ErrorContains(t, bad.Wait(), "kernel fault")
	assert.ErrorContains(t, dep.Wait(), "dependency failed")
	assert.Error(t, q.Finish())
}

func TestLaunchRejectsBadWorkGroup(t *testing.T) {
	dev, ks := newTestDevice(t, false)
	q, err := dev.NewQueue(false)
	require.NoError(t, err)
	img, err := dev.NewImage(12, 12, FormatR)
	require.NoError(t, err)
	_, err = q.Launch(ks["fill"], [2]int{12, 12}, [2]int{8, 8}, []any{img, float32(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidWorkGroupSize)

	_, err = q.Launch(ks["fill"], [2]int{12, 12}, [2]int{4, 4}, []any{img, "nope"}, nil)
	assert.ErrorContains(t, err, "unsupported type")
}

func TestReadWriteRegion(t *testing.T) {
	dev, _ := newTestDevice(t, false)
	q, err := dev.NewQueue(false)
	require.NoError(t, err)
	img, err := dev.NewImage(4, 3, FormatRG)
	require.NoError(t, err)

	src := make([]float32, 4*3*2)
	for i := range src {
		src[i] = float32(i)
	}
	_, err = q.WriteImage(img, src, nil)
	require.NoError(t, err)

	dst := make([]float32, 2*2*2)
	require.NoError(t, q.ReadImage(img, 1, 1, 2, 2, dst, nil))
	assert.Equal(t, []float32{10, 11, 12, 13, 18, 19, 20, 21}, dst)

	assert.Error(t, q.ReadImage(img, 3, 0, 2, 1, dst, nil))
	_, err = q.WriteImage(img, src[:3], nil)
	assert.Error(t, err)
}

func TestAcquireReleaseBracket(t *testing.T) {
	dev, _ := newTestDevice(t, true)
	q, err := dev.NewQueue(true)
	require.NoError(t, err)
	img, err := dev.NewImage(4, 4, FormatRGBA)
	require.NoError(t, err)

	view, err := dev.Export(img)
	require.NoError(t, err)
	assert.Len(t, view, 4*4*4)
	assert.True(t, dev.Capabilities().ExternalMemory)

	acq, err := q.Acquire([]Image{img}, nil)
	require.NoError(t, err)
	require.NoError(t, acq.Wait())
	assert.True(t, dev.Acquired(img))

	again, err := q.Acquire([]Image{img}, []Event{acq})
	require.NoError(t, err)
	assert.ErrorContains(t, again.Wait(), "already acquired")

	rel, err := q.Release([]Image{img}, []Event{acq})
	require.NoError(t, err)
	require.NoError(t, rel.Wait())
	assert.False(t, dev.Acquired(img))
}

func TestBracketUnsupportedWithoutExternalMemory(t *testing.T) {
	dev, _ := newTestDevice(t, false)
	q, err := dev.NewQueue(false)
	require.NoError(t, err)
	img, err := dev.NewImage(4, 4, FormatRGBA)
	require.NoError(t, err)

	_, err = q.Acquire([]Image{img}, nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = dev.Export(img)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestForeignObjectsRejected(t *testing.T) {
	devA, ks := newTestDevice(t, false)
	devB, _ := newTestDevice(t, false)
	imgB, err := devB.NewImage(2, 2, FormatR)
	require.NoError(t, err)
	q, err := devA.NewQueue(false)
	require.NoError(t, err)
	_, err = q.Launch(ks["fill"], [2]int{2, 2}, [2]int{1, 1}, []any{imgB, float32(1)}, nil)
	assert.ErrorIs(t, err, ErrForeignObject)
}
