package main

import "flag"

// Command-line flags. Flags that mirror a config file key only override the
// file when they are set explicitly.
var (
	// configFlag names a TOML or YAML file loaded over the defaults.
	configFlag = flag.String("config", "", "path to a .toml or .yaml config file")

	// watchConfigFlag reloads simulation parameters when the config file changes.
	watchConfigFlag = flag.Bool("watch-config", false, "apply parameter edits from the config file while running")

	backendFlag = flag.String("backend", "auto", "compute backend: auto, opencl or cpu")

	// deviceFlag selects the compute device by index, UUID or name substring.
	deviceFlag = flag.String("device", "", "compute device index, UUID or name substring")

	cpuWorkersFlag = flag.Int("cpu-workers", 0, "worker goroutines for the cpu backend (0 = one per CPU)")

	textureSizeFlag = flag.Int("texture-size", 512, "spectral grid side, a power of two")
	groupSizeFlag   = flag.Int("group-size", 16, "work-group side, a power of two")
	spectrumFlag    = flag.String("spectrum", "jonswap", "spectral technique: phillips or jonswap")
	foamFlag        = flag.String("foam", "fluid", "foam technique: none, threshold or fluid")
	schedulerFlag   = flag.String("scheduler", "auto", "launch scheduling: auto, inorder or graph")

	// zeroCopyFlag requests shared images when the device supports them.
	zeroCopyFlag = flag.Bool("zero-copy", true, "share output images with the renderer when supported")

	// fp16Flag stores host copies of the output images as 16-bit floats.
	fp16Flag = flag.Bool("fp16", false, "stage output images as 16-bit floats")

	seedFlag = flag.Int64("seed", 1, "seed of the spectrum noise")

	// listenFlag enables the websocket control endpoint.
	listenFlag = flag.String("listen", "", "serve websocket parameter control and frame telemetry on this address (e.g. :8080)")

	// snapshotAfterFlag writes a TIFF heightmap after this many frames.
	snapshotAfterFlag = flag.Int("snapshot-after", 0, "write a heightmap snapshot after N frames (0 = never)")
	snapshotDirFlag   = flag.String("snapshot-dir", ".", "directory for heightmap snapshots")

	// debugFlag enables the FPS and simulation overlay.
	debugFlag = flag.Bool("debug", false, "show FPS and simulation overlay")

	verboseFlag = flag.Bool("v", false, "log per-frame details")

	// recordDefaultPGO captures a CPU profile into default.pgo.
	recordDefaultPGO = flag.Bool("record-default-pgo", false, "capture default.pgo for 15s")
)
