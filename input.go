package main

import (
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"oceancl/internal/ocean"
)

// keyEdit is a relative parameter change bound to a key.
type keyEdit struct {
	key   ebiten.Key
	field ocean.Field
	step  float32
}

var keyEdits = []keyEdit{
	{ebiten.KeyA, ocean.FieldWindMagnitude, windStep},
	{ebiten.KeyZ, ocean.FieldWindMagnitude, -windStep},
	{ebiten.KeyS, ocean.FieldWindAngle, angleStep},
	{ebiten.KeyX, ocean.FieldWindAngle, -angleStep},
	{ebiten.KeyD, ocean.FieldAmplitude, amplitudeStep},
	{ebiten.KeyC, ocean.FieldAmplitude, -amplitudeStep},
	{ebiten.KeyF, ocean.FieldChoppiness, choppinessStep},
	{ebiten.KeyV, ocean.FieldChoppiness, -choppinessStep},
	{ebiten.KeyG, ocean.FieldAltitudeScale, altitudeStep},
	{ebiten.KeyB, ocean.FieldAltitudeScale, -altitudeStep},
}

// repeating reports a fresh press, then auto-repeat while the key is held.
func repeating(key ebiten.Key) bool {
	d := inpututil.KeyPressDuration(key)
	return d == 1 || (d >= 20 && d%4 == 0)
}

// handleInput turns key presses into edits for the next frame.
func (g *Game) handleInput() {
	var edits []ocean.Edit
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		edits = append(edits, ocean.Edit{Field: ocean.FieldAnimate, Relative: true})
	}
	for _, ke := range keyEdits {
		if repeating(ke.key) {
			edits = append(edits, ocean.Edit{Field: ke.field, Value: ke.step, Relative: true})
		}
	}
	if len(edits) > 0 {
		if err := g.sim.Edits().Push(edits...); err != nil {
			log.Printf("Input ignored: %v", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		g.snapshotRequested = true
	}
}
