package ocean

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditApply(t *testing.T) {
	var pe PendingEdits
	require.NoError(t, pe.Push(
		Edit{Field: FieldWindMagnitude, Value: 1, Relative: true},
		Edit{Field: FieldChoppiness, Value: 2},
	))
	p, changed := pe.Apply(DefaultParams())
	assert.True(t, changed)
	assert.Equal(t, float32(31), p.WindMagnitude)
	assert.Equal(t, float32(2), p.Choppiness)
	assert.Zero(t, pe.Len())

	require.NoError(t, pe.Push(Edit{Field: FieldAltitudeScale, Value: -0.5, Relative: true}))
	p, changed = pe.Apply(p)
	assert.False(t, changed)
	assert.Equal(t, float32(19.5), p.AltitudeScale)

	assert.Error(t, pe.Push(Edit{Field: FieldAmplitude, Value: float32(math.NaN())}))
	assert.Error(t, pe.Push(Edit{Field: "gravity", Value: 1}))
	assert.Zero(t, pe.Len(), "rejected batches are not queued")
}

func TestPendingEditsConcurrent(t *testing.T) {
	var pe PendingEdits
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = pe.Push(Edit{Field: FieldWindAngle, Value: 1, Relative: true})
			}
		}()
	}
	wg.Wait()
	p, changed := pe.Apply(DefaultParams())
	assert.True(t, changed)
	assert.Equal(t, float32(845), p.WindAngle)
}

func TestParamsDiff(t *testing.T) {
	p := DefaultParams()
	q := p
	q.Amplitude = 10
	q.Animate = false
	edits := p.Diff(q)
	require.Len(t, edits, 2)
	var pe PendingEdits
	require.NoError(t, pe.Push(edits...))
	got, _ := pe.Apply(p)
	assert.Equal(t, q, got)
	assert.Empty(t, p.Diff(p))
}

func TestWind(t *testing.T) {
	p := Params{WindMagnitude: 2, WindAngle: 90}
	x, y := p.Wind()
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 2, y, 1e-6)
}

func TestClock(t *testing.T) {
	c := NewClock(epoch)
	e, dt := c.Advance(epoch.Add(time.Second), true)
	assert.InDelta(t, 1, e, 1e-6)
	assert.InDelta(t, 1, dt, 1e-6)

	e, dt = c.Advance(epoch.Add(3*time.Second), false)
	assert.InDelta(t, 1, e, 1e-6)
	assert.Zero(t, dt)

	e, dt = c.Advance(epoch.Add(3500*time.Millisecond), true)
	assert.InDelta(t, 1.5, e, 1e-6)
	assert.InDelta(t, 0.5, dt, 1e-6)

	// a clock that goes backwards never rewinds the animation
	e, dt = c.Advance(epoch.Add(time.Second), true)
	assert.InDelta(t, 1.5, e, 1e-6)
	assert.Zero(t, dt)
	assert.Equal(t, 1500*time.Millisecond, c.Elapsed())
}
