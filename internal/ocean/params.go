package ocean

import (
	"fmt"
	"math"
	"sync"
)

// Params is the per-frame snapshot of the user-tunable simulation values.
// Stages receive it by value and never modify it.
type Params struct {
	WindMagnitude float32 `toml:"wind_magnitude" yaml:"wind_magnitude" json:"wind_magnitude"`
	// WindAngle is in degrees.
	WindAngle      float32 `toml:"wind_angle" yaml:"wind_angle" json:"wind_angle"`
	Amplitude      float32 `toml:"amplitude" yaml:"amplitude" json:"amplitude"`
	SuppressFactor float32 `toml:"suppress_factor" yaml:"suppress_factor" json:"suppress_factor"`
	Choppiness     float32 `toml:"choppiness" yaml:"choppiness" json:"choppiness"`
	AltitudeScale  float32 `toml:"altitude_scale" yaml:"altitude_scale" json:"altitude_scale"`
	Animate        bool    `toml:"animate" yaml:"animate" json:"animate"`
}

// DefaultParams returns the initial parameter set.
func DefaultParams() Params {
	return Params{
		WindMagnitude:  30,
		WindAngle:      45,
		Amplitude:      80,
		SuppressFactor: 0.1,
		Choppiness:     10,
		AltitudeScale:  20,
		Animate:        true,
	}
}

// Wind returns the wind vector.
func (p Params) Wind() (x, y float32) {
	rad := float64(p.WindAngle) * math.Pi / 180
	return p.WindMagnitude * float32(math.Cos(rad)), p.WindMagnitude * float32(math.Sin(rad))
}

// Field names one editable parameter.
type Field string

const (
	FieldWindMagnitude  Field = "wind_magnitude"
	FieldWindAngle      Field = "wind_angle"
	FieldAmplitude      Field = "amplitude"
	FieldSuppressFactor Field = "suppress_factor"
	FieldChoppiness     Field = "choppiness"
	FieldAltitudeScale  Field = "altitude_scale"
	FieldAnimate        Field = "animate"
)

// reshapes reports whether editing f changes the initial spectrum.
func (f Field) reshapes() bool {
	switch f {
	case FieldWindMagnitude, FieldWindAngle, FieldAmplitude, FieldSuppressFactor:
		return true
	}
	return false
}

// Edit is one pending change. Relative edits add Value; for FieldAnimate a
// relative edit toggles and an absolute one sets Value != 0.
type Edit struct {
	Field    Field   `json:"field"`
	Value    float32 `json:"value"`
	Relative bool    `json:"relative"`
}

func (e Edit) apply(p *Params) error {
	var dst *float32
	switch e.Field {
	case FieldWindMagnitude:
		dst = &p.WindMagnitude
	case FieldWindAngle:
		dst = &p.WindAngle
	case FieldAmplitude:
		dst = &p.Amplitude
	case FieldSuppressFactor:
		dst = &p.SuppressFactor
	case FieldChoppiness:
		dst = &p.Choppiness
	case FieldAltitudeScale:
		dst = &p.AltitudeScale
	case FieldAnimate:
		if e.Relative {
			p.Animate = !p.Animate
		} else {
			p.Animate = e.Value != 0
		}
		return nil
	default:
		return fmt.Errorf("unknown parameter %q", e.Field)
	}
	if math.IsNaN(float64(e.Value)) || math.IsInf(float64(e.Value), 0) {
		return fmt.Errorf("parameter %q: non-finite value", e.Field)
	}
	if e.Relative {
		*dst += e.Value
	} else {
		*dst = e.Value
	}
	return nil
}

// Diff returns absolute edits turning p into q.
func (p Params) Diff(q Params) []Edit {
	var out []Edit
	add := func(f Field, a, b float32) {
		if a != b {
			out = append(out, Edit{Field: f, Value: b})
		}
	}
	add(FieldWindMagnitude, p.WindMagnitude, q.WindMagnitude)
	add(FieldWindAngle, p.WindAngle, q.WindAngle)
	add(FieldAmplitude, p.Amplitude, q.Amplitude)
	add(FieldSuppressFactor, p.SuppressFactor, q.SuppressFactor)
	add(FieldChoppiness, p.Choppiness, q.Choppiness)
	add(FieldAltitudeScale, p.AltitudeScale, q.AltitudeScale)
	if p.Animate != q.Animate {
		v := float32(0)
		if q.Animate {
			v = 1
		}
		out = append(out, Edit{Field: FieldAnimate, Value: v})
	}
	return out
}

// PendingEdits collects edits from any goroutine. The simulation drains it
// once per frame, so a frame never sees half of a batch.
type PendingEdits struct {
	mu    sync.Mutex
	edits []Edit
}

// Push queues edits as one batch.
func (pe *PendingEdits) Push(edits ...Edit) error {
	for _, e := range edits {
		var scratch Params
		if err := e.apply(&scratch); err != nil {
			return err
		}
	}
	pe.mu.Lock()
	pe.edits = append(pe.edits, edits...)
	pe.mu.Unlock()
	return nil
}

// Len is the number of queued edits.
func (pe *PendingEdits) Len() int {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return len(pe.edits)
}

// Apply drains the queue into p. changed reports whether any applied edit
// reshapes the spectrum.
func (pe *PendingEdits) Apply(p Params) (next Params, changed bool) {
	pe.mu.Lock()
	edits := pe.edits
	pe.edits = nil
	pe.mu.Unlock()
	for _, e := range edits {
		if err := e.apply(&p); err != nil {
			continue
		}
		changed = changed || e.Field.reshapes()
	}
	return p, changed
}
