package ocean

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseBits(t *testing.T) {
	assert.Equal(t, uint32(4), ReverseBits(1, 3))
	assert.Equal(t, uint32(3), ReverseBits(6, 3))
	assert.Equal(t, uint32(0), ReverseBits(0, 9))
	for i := range uint32(16) {
		assert.Equal(t, i, ReverseBits(ReverseBits(i, 4), 4))
	}
}

func TestFFTPlanCounts(t *testing.T) {
	for _, tc := range []struct {
		n, stages, butterflies, copies int
	}{
		{4, 1, 6, 6},
		{16, 3, 18, 6},
		{256, 7, 42, 6},
		{512, 8, 48, 0},
	} {
		p, err := NewFFTPlan(tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.stages, p.Stages, "n=%d", tc.n)
		assert.Equal(t, tc.butterflies, p.ButterflyLaunches(), "n=%d", tc.n)
		assert.Equal(t, tc.copies, p.CopyLaunches(), "n=%d", tc.n)
		assert.Equal(t, p.Log2N, p.ReversalBits())
	}

	for _, n := range []int{0, 2, 3, 12} {
		_, err := NewFFTPlan(n)
		assert.Error(t, err, "n=%d", n)
	}
}

func TestTwiddleTexel(t *testing.T) {
	p, err := NewFFTPlan(16)
	require.NoError(t, err)

	assert.Equal(t, [4]float32{2, 10, 6, 14}, p.TwiddleTexel(0, 5))
	assert.Equal(t, [4]float32{0, 8, 4, 12}, p.TwiddleTexel(0, 0))

	// stage 1 combines blocks of four: top half adds, bottom half subtracts
	top := p.TwiddleTexel(1, 1)
	bottom := p.TwiddleTexel(1, 5)
	assert.Equal(t, float32(1), top[2])
	assert.Equal(t, float32(5), top[3])
	assert.Equal(t, float32(1), bottom[2])
	assert.Equal(t, float32(5), bottom[3])
	assert.InDelta(t, math.Cos(math.Pi/4), top[0], 1e-6)
	assert.InDelta(t, math.Sin(math.Pi/4), top[1], 1e-6)
	assert.InDelta(t, -top[0], bottom[0], 1e-6)
	assert.InDelta(t, -top[1], bottom[1], 1e-6)
}

func TestReducePlan(t *testing.T) {
	p, err := NewReducePlan(16, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Stages)
	want := [][2]int{{8, 4}, {4, 4}, {2, 2}, {1, 1}}
	for i, w := range want {
		size, local := p.Stage(i)
		assert.Equal(t, w, [2]int{size, local}, "stage %d", i)
	}
	assert.Equal(t, 0, p.ResultIndex())

	p, err = NewReducePlan(8, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ResultIndex())

	_, err = NewReducePlan(12, 4)
	assert.Error(t, err)
}

func TestClampDt(t *testing.T) {
	assert.Equal(t, float32(0.5), ClampDt(1, 32))
	assert.Equal(t, float32(1), ClampDt(1, 8))
	assert.Equal(t, float32(0.25), ClampDt(0.25, 0))
	assert.Equal(t, float32(0.25), ClampDt(0.25, float32(math.NaN())))
	assert.Equal(t, float32(0.25), ClampDt(0.25, float32(math.Inf(1))))
	assert.Equal(t, float32(0.25), ClampDt(0.25, -3))
}
