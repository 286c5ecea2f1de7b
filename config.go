package main

import "time"

// Window, input and overlay constants.
const (
	windowScale       = 2
	maxWindowSide     = 1024
	defaultTPS        = 60.0
	windStep          = 1
	angleStep         = 1
	amplitudeStep     = 0.5
	choppinessStep    = 0.5
	altitudeStep      = 0.5
	paletteSize       = 256
	chopPixelScale    = 0.02
	reliefPerAltitude = 0.05
	foamWhite         = 0.85
	ambientLight      = 0.35
	statsLogInterval  = 5 * time.Second
	pgoRecordDuration = 15 * time.Second
)
