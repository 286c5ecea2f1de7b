package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"oceancl/internal/compute"
	"oceancl/internal/control"
	"oceancl/internal/ocean"
)

// Game drives the simulation from the ebiten loop and shades its output.
type Game struct {
	dev     compute.Device
	sim     *ocean.Simulation
	staging *ocean.StagingSurface
	server  *control.Server
	watcher *control.Watcher
	cancel  context.CancelFunc

	size    int
	palette [paletteSize][3]float32
	pixels  []byte
	disp    []float32
	normal  []float32

	last         ocean.FrameStats
	lastTick     time.Duration
	lastStatsLog time.Time

	snapshotDone      bool
	snapshotRequested bool
}

// newGame opens the compute device, builds the simulation and starts the
// optional control endpoint and config watcher.
func newGame(cfg, fileCfg ocean.Config, logger *slog.Logger) (*Game, error) {
	dev, err := compute.Open(compute.OpenOptions{
		Backend:   compute.Backend(*backendFlag),
		Selection: compute.ParseSelection(*deviceFlag),
		CPU: compute.CPUOptions{
			Workers:        *cpuWorkersFlag,
			ExternalMemory: true,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	sim, err := ocean.New(ocean.Options{Config: cfg, Device: dev, Logger: logger})
	if err != nil {
		dev.Close()
		return nil, err
	}
	id := sim.Device()
	log.Printf("Ocean ready (device: %s / %s, %dx%d, %s spectrum, %s foam, %s scheduler, zero-copy %v)",
		id.Platform, id.Name, cfg.TextureSize, cfg.TextureSize, cfg.SpectralTechnique,
		sim.FoamTechnique(), sim.Scheduler(), sim.Shared())

	ctx, cancel := context.WithCancel(context.Background())
	g := &Game{
		dev:     dev,
		sim:     sim,
		staging: sim.Staging(),
		cancel:  cancel,
		size:    cfg.TextureSize,
		palette: newPalette(),
		pixels:  make([]byte, cfg.TextureSize*cfg.TextureSize*4),
	}

	if *listenFlag != "" {
		g.server = control.NewServer(sim.Edits(), logger)
		go func() {
			if err := g.server.ListenAndServe(ctx, *listenFlag); err != nil {
				log.Printf("Control endpoint stopped: %v", err)
			}
		}()
	}
	if *watchConfigFlag && *configFlag != "" {
		w, err := control.NewWatcher(*configFlag, fileCfg, sim.Edits(), logger)
		if err != nil {
			log.Printf("Config watch disabled: %v", err)
		} else {
			g.watcher = w
			go w.Run(ctx)
		}
	}
	return g, nil
}

// Update advances the simulation by one frame.
func (g *Game) Update() error {
	g.handleInput()

	start := time.Now()
	st, err := g.sim.Tick(start)
	if err != nil {
		if ocean.IsFatal(err) {
			return err
		}
		log.Printf("Frame skipped: %v", err)
		return nil
	}
	g.lastTick = time.Since(start)
	g.last = st
	if st.Skipped {
		return nil
	}

	if g.server != nil {
		g.server.Broadcast(st)
	}
	auto := !g.snapshotDone && *snapshotAfterFlag > 0 && st.Frame+1 >= uint64(*snapshotAfterFlag)
	if auto || g.snapshotRequested {
		g.snapshotDone = g.snapshotDone || auto
		g.snapshotRequested = false
		g.snapshot(st)
	}
	if *verboseFlag && time.Since(g.lastStatsLog) >= statsLogInterval {
		g.lastStatsLog = time.Now()
		slog.Debug("frame", "frame", st.Frame, "zmin", st.ZMin, "zmax", st.ZMax,
			"launches", st.Launches, "tick", g.lastTick, "unsynchronized", st.Unsynchronized)
	}
	return nil
}

func (g *Game) snapshot(st ocean.FrameStats) {
	disp, err := g.sim.Readback(st.Slot, ocean.TargetDisplacement)
	if err != nil {
		log.Printf("Snapshot failed: %v", err)
		return
	}
	normal, err := g.sim.Readback(st.Slot, ocean.TargetNormal)
	if err != nil {
		log.Printf("Snapshot failed: %v", err)
		return
	}
	path, err := writeSnapshot(*snapshotDirFlag, st.Frame, g.size, disp, normal,
		ocean.ZRange{Min: st.ZMin, Max: st.ZMax})
	if err != nil {
		log.Printf("Snapshot failed: %v", err)
		return
	}
	log.Printf("Snapshot written to %s", path)
}

// Close stops the background services and releases the simulation.
func (g *Game) Close() {
	g.cancel()
	if g.watcher != nil {
		g.watcher.Close()
	}
	if err := g.sim.Close(); err != nil {
		log.Printf("Simulation close: %v", err)
	}
	g.dev.Close()
}
